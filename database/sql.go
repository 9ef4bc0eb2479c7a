package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sreekar-ss/devbytes-blog/config"
)

// Supported values of DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
)

// Dialect selects the few SQL fragments that differ between Postgres and the
// SQLite family.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DayBucket renders a UTC "YYYY-MM-DD" expression over a unix-millisecond column.
func (d Dialect) DayBucket(column string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("to_char(to_timestamp(%s / 1000.0) AT TIME ZONE 'UTC', 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s / 1000, 'unixepoch')", column)
}

type DB struct {
	*sqlx.DB
	Dialect Dialect
	logger  *zap.Logger
}

func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	var dialect Dialect
	switch cfg.Driver {
	case DriverPostgres:
		dialect = DialectPostgres
	case DriverSQLite, DriverLibSQL:
		dialect = DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite {
		// one writer; also keeps every query on the same file handle
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	logger.Info("Database connected",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", maxOpen),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return &DB{DB: db, Dialect: dialect, logger: logger}, nil
}

func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		db.logger.Error("Error closing database connection", zap.Error(err))
		return fmt.Errorf("could not close database connection: %w", err)
	}
	db.logger.Info("Database connection closed")
	return nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}
