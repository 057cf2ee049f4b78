package sources

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/httpclient"
)

func TestBOAMP_Fetch(t *testing.T) {
	wheres := make(chan string, 4)
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		wheres <- r.URL.Query().Get("where")
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `{"total_count":1,"results":[]}`)
			return
		}
		fmt.Fprint(w, `{"total_count":1,"results":[{
			"idweb":"25-12345","objet":"Fourniture de réactifs de laboratoire",
			"nomacheteur":"CHU de Lyon","dateparution":"2025-01-14",
			"datelimitereponse":"2025-02-20T12:00:00+01:00",
			"descripteur_libelle":["Réactifs de laboratoire","Matériel médical"],
			"type_marche":["FOURNITURES"]}]}`)
	})

	since := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	cfg := config.PlatformConfig{BaseURL: server.URL, PageSize: 50, MaxPages: 3}
	recs, errs := collect(NewBOAMP(cfg, testOptions(httpclient.APIClient)...).Fetch(context.Background(), Query{Since: &since}))

	assert.Empty(t, errs)
	assert.Equal(t, "dateparution>=date'2025-01-10'", <-wheres)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "25-12345", rec.ExternalID)
	assert.Equal(t, "CHU de Lyon", rec.Organization)
	assert.Equal(t, "Réactifs de laboratoire, Matériel médical", rec.Description)
	assert.Equal(t, "fr", rec.Language)
	assert.Equal(t, "FOURNITURES", rec.Extra["type_marche"])
	assert.Equal(t, boampNoticeURL+"25-12345", rec.URL)
}

func TestBOAMP_WatermarkDateIsUTC(t *testing.T) {
	wheres := make(chan string, 1)
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		wheres <- r.URL.Query().Get("where")
		fmt.Fprint(w, `{"total_count":0,"results":[]}`)
	})

	// 05:00 in Seoul is still the previous evening in Paris.
	since := time.Date(2025, 1, 10, 5, 0, 0, 0, time.FixedZone("KST", 9*60*60))
	cfg := config.PlatformConfig{BaseURL: server.URL, MaxPages: 1}
	_, errs := collect(NewBOAMP(cfg, testOptions(httpclient.APIClient)...).Fetch(context.Background(), Query{Since: &since}))

	assert.Empty(t, errs)
	assert.Equal(t, "dateparution>=date'2025-01-09'", <-wheres)
}
