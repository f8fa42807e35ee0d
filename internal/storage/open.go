package storage

import (
	"context"
	"fmt"

	"softphone/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options selects and configures the backing store.
// PostgresDSN must not be logged; it contains secrets.
type Options struct {
	Driver      string
	Namespace   string
	SQLitePath  string
	PostgresDSN string
	RedisAddr   string
}

// Open connects the configured driver and returns a namespaced KV.
func Open(ctx context.Context, opts Options) (KV, error) {
	var kv KV
	switch opts.Driver {
	case DriverMemory:
		kv = NewMemoryKV()
	case DriverSQLite:
		dsn, err := utils.SQLiteDSN(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if kv, err = openSQL(ctx, utils.DBConfig{Driver: utils.DriverSQLite, DSN: dsn}, DialectSQLite); err != nil {
			return nil, err
		}
	case DriverPostgres:
		var err error
		if kv, err = openSQL(ctx, utils.DBConfig{Driver: utils.DriverPgx, DSN: opts.PostgresDSN}, DialectPostgres); err != nil {
			return nil, err
		}
	case DriverRedis:
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: opts.RedisAddr})
		if err != nil {
			return nil, err
		}
		kv = NewRedisKV(rdb)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
	return Namespaced(kv, opts.Namespace), nil
}

func openSQL(ctx context.Context, cfg utils.DBConfig, dialect Dialect) (KV, error) {
	db, err := utils.OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLKV(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
