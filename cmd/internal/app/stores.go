package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"authgate/cmd/account"
	"authgate/cmd/account/migrations"
)

// storeHandle is an account store plus the resources the app owns for it.
type storeHandle struct {
	store account.Store
	kind  string
	close func()
}

func (h storeHandle) Close() {
	if h.close != nil {
		h.close()
	}
}

// newStore builds the account store selected by cfg.Store.
func newStore(ctx context.Context, cfg Config, log Logger) (storeHandle, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Store))
	switch kind {
	case "", StoreMemory:
		log.Warn("store.memory", "note", "accounts are lost on restart")
		return storeHandle{store: account.NewMemoryStore(), kind: StoreMemory}, nil

	case StorePostgres:
		return newPostgresStore(ctx, cfg, log)

	case StoreDynamo:
		client, err := account.NewDynamoClient(ctx, account.DynamoConfig{
			Region:   cfg.DynamoRegion,
			Endpoint: cfg.DynamoEndpoint,
		})
		if err != nil {
			return storeHandle{}, err
		}
		st, err := account.NewDynamoStore(client, cfg.DynamoTable)
		if err != nil {
			return storeHandle{}, err
		}
		if cfg.DynamoBackfill {
			n, err := st.BackfillEmailKeys(ctx)
			if err != nil {
				return storeHandle{}, err
			}
			log.Info("store.dynamodb.backfill", "updated", n)
		}
		log.Info("store.dynamodb", "table", cfg.DynamoTable, "region", cfg.DynamoRegion)
		return storeHandle{store: st, kind: StoreDynamo}, nil

	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st, err := account.NewRedisStore(rdb, cfg.RedisPrefix)
		if err != nil {
			_ = rdb.Close()
			return storeHandle{}, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			_ = rdb.Close()
			return storeHandle{}, err
		}
		log.Info("store.redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return storeHandle{store: st, kind: StoreRedis, close: func() { _ = rdb.Close() }}, nil

	default:
		return storeHandle{}, fmt.Errorf("unknown AUTHGATE_STORE %q (want memory, postgres, dynamodb or redis)", cfg.Store)
	}
}

// newPostgresStore opens the pool, applies migrations when asked, and builds the store.
// The app owns the pool; PostgresStore never closes it.
func newPostgresStore(ctx context.Context, cfg Config, log Logger) (storeHandle, error) {
	if cfg.DatabaseURL == "" {
		return storeHandle{}, fmt.Errorf("AUTHGATE_STORE=postgres requires AUTHGATE_DATABASE_URL")
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return storeHandle{}, err
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return storeHandle{}, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return storeHandle{}, err
	}

	if cfg.DBMigrate {
		if cfg.DBSchema != "" && cfg.DBSchema != account.DefaultSchema {
			pool.Close()
			return storeHandle{}, fmt.Errorf("AUTHGATE_DB_MIGRATE only manages schema %q", account.DefaultSchema)
		}
		if err := migrations.Up(ctx, pool); err != nil {
			pool.Close()
			return storeHandle{}, err
		}
		log.Info("db.migrate.done")
	}

	var opts []account.PostgresOption
	if cfg.DBSchema != "" {
		opts = append(opts, account.WithSchema(cfg.DBSchema))
	}
	st, err := account.NewPostgresStore(pool, opts...)
	if err != nil {
		pool.Close()
		return storeHandle{}, err
	}

	log.Info("store.postgres", "max_conns", pcfg.MaxConns)
	return storeHandle{store: st, kind: StorePostgres, close: pool.Close}, nil
}
