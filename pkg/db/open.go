package db

import (
	"context"
	"fmt"

	"tender-ingest/pkg/config"
)

// sqlStore closes the owning client together with the gateway.
type sqlStore struct {
	*PostgresGateway
	close func() error
}

func (s *sqlStore) Close(context.Context) error { return s.close() }

// Open connects the storage backend selected by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	pool := PoolConfig{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		ConnMaxLife:  cfg.ConnMaxLife,
	}

	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemoryGateway(), nil

	case config.DriverPostgres:
		client := NewPostgresClient(PostgresConfig{DSN: cfg.PostgresDSN, Pool: pool})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return prepareSQL(ctx, NewPostgresGateway(client), client.Close)

	case config.DriverSupabase:
		client := NewSupabaseClient(SupabaseConfig{
			ConnectionString: cfg.Supabase.ConnectionString,
			URL:              cfg.Supabase.URL,
			Key:              cfg.Supabase.Key,
			Password:         cfg.Supabase.Password,
			Pool:             pool,
		})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		if !client.HasDirectDB() {
			return NewSupabaseRESTGateway(client.SDK()), nil
		}
		return prepareSQL(ctx, NewPostgresGateway(client), client.Close)

	case config.DriverMongo:
		g, err := NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Mongo.WatermarkCollection)
		if err != nil {
			return nil, err
		}
		if err := g.EnsureIndexes(ctx); err != nil {
			_ = g.Close(ctx)
			return nil, err
		}
		return g, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}

func prepareSQL(ctx context.Context, g *PostgresGateway, closeFn func() error) (Store, error) {
	if err := g.EnsureSchema(ctx); err != nil {
		_ = closeFn()
		return nil, err
	}
	return &sqlStore{PostgresGateway: g, close: closeFn}, nil
}
