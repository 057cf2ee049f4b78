package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tender-ingest/pkg/domain"
)

// MongoClient wraps the MongoDB client and database handle.
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoClient creates a client for the given database. The connection is
// verified by Connect.
func NewMongoClient(uri, database string) (*MongoClient, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo client: %w", err)
	}
	return &MongoClient{client: client, database: client.Database(database)}, nil
}

// Connect verifies the connection to MongoDB.
func (c *MongoClient) Connect(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}
	return c.client.Ping(ctx, nil)
}

func (c *MongoClient) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

func (c *MongoClient) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// MongoGateway stores notices as documents keyed by (source_site, external_id).
type MongoGateway struct {
	notices    *mongo.Collection
	watermarks *mongo.Collection
	closer     func(context.Context) error
}

var _ Store = (*MongoGateway)(nil)

// NewMongoGateway uses notices for tender documents and watermarks for crawl watermarks.
func NewMongoGateway(notices, watermarks *mongo.Collection) *MongoGateway {
	return &MongoGateway{notices: notices, watermarks: watermarks}
}

// NewMongoStore opens a client and returns a gateway that closes it on Close.
func NewMongoStore(ctx context.Context, uri, database, noticeColl, watermarkColl string) (*MongoGateway, error) {
	client, err := NewMongoClient(uri, database)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	g := NewMongoGateway(client.Collection(noticeColl), client.Collection(watermarkColl))
	g.closer = client.Close
	return g, nil
}

// EnsureIndexes creates the unique natural-key index and the ordering index.
func (g *MongoGateway) EnsureIndexes(ctx context.Context) error {
	_, err := g.notices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source_site", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "collected_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create notice indexes: %w", err)
	}
	return nil
}

func keyFilter(site domain.SourceSite, externalID string) bson.M {
	return bson.M{"source_site": site, "external_id": externalID}
}

func (g *MongoGateway) FindByKey(ctx context.Context, site domain.SourceSite, externalID string) (*domain.TenderNotice, error) {
	var n domain.TenderNotice
	err := g.notices.FindOne(ctx, keyFilter(site, externalID)).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s:%s: %w", site, externalID, err)
	}
	return &n, nil
}

// Upsert replaces the document under the natural key. collected_at is only
// written on insert.
func (g *MongoGateway) Upsert(ctx context.Context, n *domain.TenderNotice) (string, error) {
	doc, err := bson.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", n.Key(), err)
	}
	var fields bson.M
	if err := bson.Unmarshal(doc, &fields); err != nil {
		return "", fmt.Errorf("encode %s: %w", n.Key(), err)
	}
	delete(fields, "collected_at")

	update := bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"collected_at": n.CollectedAt},
	}
	if _, err := g.notices.UpdateOne(ctx, keyFilter(n.SourceSite, n.ExternalID), update,
		options.Update().SetUpsert(true)); err != nil {
		return "", fmt.Errorf("upsert %s: %w", n.Key(), err)
	}
	return n.Key(), nil
}

func searchFilter(q SearchQuery) bson.M {
	filter := bson.M{}
	if !q.IncludePlaceholder {
		filter["provenance"] = bson.M{"$ne": domain.ProvenancePlaceholder}
	}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(kw), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"title": pattern}, bson.M{"description": pattern}}
	}
	if q.Country != "" {
		filter["country"] = strings.ToUpper(q.Country)
	}
	if q.Site != "" {
		filter["source_site"] = q.Site
	}
	if q.MinScore > 0 {
		filter["healthcare_relevance_score"] = bson.M{"$gte": q.MinScore}
	}
	return filter
}

func (g *MongoGateway) Search(ctx context.Context, q SearchQuery) ([]domain.TenderNotice, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "collected_at", Value: -1}}).
		SetLimit(int64(q.limit()))
	return g.find(ctx, searchFilter(q), opts)
}

func (g *MongoGateway) All(ctx context.Context) ([]domain.TenderNotice, error) {
	return g.find(ctx, bson.M{}, options.Find())
}

func (g *MongoGateway) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.TenderNotice, error) {
	cursor, err := g.notices.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query notices: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]domain.TenderNotice, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode notices: %w", err)
	}
	return out, nil
}

func (g *MongoGateway) Stats(ctx context.Context, threshold float64) (*Stats, error) {
	st := newStats(threshold)

	cursor, err := g.notices.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$healthcare_relevance_score"}}},
			{Key: "above", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$healthcare_relevance_score", threshold}}}, 1, 0,
			}}}}}},
			{Key: "invalid", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{"$invalid", 1, 0}}}}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate totals: %w", err)
	}
	var totals []struct {
		Total   int64   `bson:"total"`
		Avg     float64 `bson:"avg"`
		Above   int64   `bson:"above"`
		Invalid int64   `bson:"invalid"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}
	if len(totals) > 0 {
		st.Total = totals[0].Total
		st.AverageScore = totals[0].Avg
		st.AboveThreshold = totals[0].Above
		st.Invalid = totals[0].Invalid
	}

	if err := g.groupCount(ctx, "$source_site", st.BySite); err != nil {
		return nil, err
	}
	if err := g.groupCount(ctx, "$country", st.ByCountry); err != nil {
		return nil, err
	}
	return st, nil
}

func (g *MongoGateway) groupCount(ctx context.Context, field string, into map[string]int64) error {
	cursor, err := g.notices.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return fmt.Errorf("group by %s: %w", field, err)
	}
	var groups []struct {
		Key   string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return fmt.Errorf("decode %s groups: %w", field, err)
	}
	for _, gr := range groups {
		into[gr.Key] = gr.Count
	}
	return nil
}

type watermarkDoc struct {
	Site              string    `bson:"_id"`
	LastSuccessfulRun time.Time `bson:"last_successful_run"`
}

func (g *MongoGateway) LastSuccessfulRun(ctx context.Context, site domain.SourceSite) (time.Time, bool, error) {
	var doc watermarkDoc
	err := g.watermarks.FindOne(ctx, bson.M{"_id": string(site)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", site, err)
	}
	return doc.LastSuccessfulRun, true, nil
}

func (g *MongoGateway) SetLastSuccessfulRun(ctx context.Context, site domain.SourceSite, at time.Time) error {
	_, err := g.watermarks.UpdateOne(ctx,
		bson.M{"_id": string(site)},
		bson.M{"$set": bson.M{"last_successful_run": at.UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", site, err)
	}
	return nil
}

func (g *MongoGateway) Close(ctx context.Context) error {
	if g.closer == nil {
		return nil
	}
	return g.closer(ctx)
}
