package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/worldbeesion/beecareful-backend/config"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// OpenDB opens the pgx pool and the database/sql handle the repositories use
// on top of it.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, *sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("DB_DSN is not set")
	}
	if cfg.ConnectTO == 0 {
		cfg.ConnectTO = 5 * time.Second
	}
	if cfg.PingTO == 0 {
		cfg.PingTO = 2 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTO)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}

	pctx, pcancel := context.WithTimeout(ctx, cfg.PingTO)
	defer pcancel()

	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}

	return pool, postgres.NewConnection(pool), nil
}
