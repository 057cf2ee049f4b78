package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tender-ingest/pkg/db"
	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/pipeline"
	"tender-ingest/pkg/replication"
)

const (
	titleWidth = 60
	errorWidth = 50
)

type platformRow struct {
	Site      domain.SourceSite
	Source    string
	BaseURL   string
	KeyEnv    string
	KeySet    bool
	Schedules []string
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderReport(w io.Writer, report pipeline.CrawlReport) {
	t := newTable(w)
	t.SetTitle("Crawl %s", report.RunID)
	t.AppendHeader(table.Row{"Platform", "Fetched", "Parsed", "Inserted", "Updated", "Skipped", "Faulted", "Duration", "Status"})
	for _, p := range report.Platforms {
		t.AppendRow(table.Row{
			p.Site, p.Fetched, p.Parsed, p.Inserted, p.Updated, p.Skipped, p.Faulted,
			p.Duration.Round(time.Millisecond), platformStatus(p),
		})
	}
	totals := report.Totals()
	t.AppendFooter(table.Row{
		"Total", report.TotalFound, totals.Parsed, totals.Inserted, totals.Updated, totals.Skipped, totals.Faulted,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		fmt.Sprintf("%d failed", len(report.Failed())),
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 9, WidthMax: errorWidth}})
	t.Render()
}

func platformStatus(p pipeline.PlatformReport) string {
	if p.OK() {
		return "ok"
	}
	return p.ErrorKind + ": " + p.Error
}

func renderNotices(w io.Writer, notices []domain.TenderNotice) {
	if len(notices) == 0 {
		fmt.Fprintln(w, "No notices found.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Platform", "ID", "Title", "Country", "Score", "Deadline", "Collected"})
	for i, n := range notices {
		deadline := ""
		if n.DeadlineDate != nil {
			deadline = n.DeadlineDate.Format("2006-01-02")
		}
		t.AppendRow(table.Row{
			i + 1, n.SourceSite, n.ExternalID, text.Trim(n.Title, titleWidth), n.Country,
			fmt.Sprintf("%.2f", n.HealthcareRelevanceScore), deadline, n.CollectedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}

func renderStats(w io.Writer, stats *db.Stats) {
	t := newTable(w)
	t.SetTitle("Stored notices")
	t.AppendRows([]table.Row{
		{"Total", stats.Total},
		{"Average score", fmt.Sprintf("%.3f", stats.AverageScore)},
		{fmt.Sprintf("Score >= %.2f", stats.Threshold), stats.AboveThreshold},
		{"Invalid", stats.Invalid},
	})
	t.Render()

	renderCounts(w, "Platform", stats.BySite)
	renderCounts(w, "Country", stats.ByCountry)
}

// renderCounts prints counts sorted by size, largest first.
func renderCounts(w io.Writer, label string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	t := newTable(w)
	t.AppendHeader(table.Row{label, "Notices"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, counts[k]})
	}
	t.Render()
}

func renderReplication(w io.Writer, from, to string, res replication.Result) {
	t := newTable(w)
	t.SetTitle("Replication %s -> %s", from, to)
	t.AppendHeader(table.Row{"Processed", "Copied", "Skipped", "Watermarks"})
	t.AppendRow(table.Row{res.Processed, res.Copied, res.Skipped, res.Watermarks})
	t.Render()
}

func renderPlatforms(w io.Writer, rows []platformRow) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Platform", "Country", "Source", "Base URL", "API key", "Schedules"})
	for _, r := range rows {
		key := "-"
		switch {
		case r.KeySet:
			key = r.KeyEnv + " (set)"
		case r.KeyEnv != "":
			key = r.KeyEnv + " (missing)"
		}
		country := r.Site.Country()
		if r.Site.MultiCountry() {
			country = "multi"
		}
		t.AppendRow(table.Row{r.Site, country, r.Source, r.BaseURL, key, strings.Join(r.Schedules, ", ")})
	}
	t.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
