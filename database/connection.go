// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/config"
)

// Supported values of config.DatabaseConfig.Driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Store wraps the connection pool together with a statement builder that emits the
// placeholder style of the underlying engine.
type Store struct {
	DB      *sql.DB
	Builder sq.StatementBuilderType
	Driver  string
}

// Open connects to the configured engine and verifies the connection with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driverName, dsn, err := DataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer at a time; pinned replace connections would otherwise hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("driver", cfg.Driver).Msg("Database: connected")
	return NewStore(db, cfg.Driver), nil
}

// NewStore wraps an already opened pool.
func NewStore(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		DB:      db,
		Builder: sq.StatementBuilder.PlaceholderFormat(format),
		Driver:  driver,
	}
}

// DataSourceName returns the database/sql driver name and DSN for cfg.
func DataSourceName(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case DriverMySQL:
		if cfg.DSN != "" {
			return "mysql", cfg.DSN, nil
		}
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil
	case DriverPostgres:
		if cfg.DSN != "" {
			return "pgx", cfg.DSN, nil
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
			cfg.User, cfg.Password, net.JoinHostPort(cfg.Host, cfg.Port), cfg.DBName)
		return "pgx", dsn, nil
	case DriverSQLite:
		if cfg.DSN != "" {
			return "sqlite3", cfg.DSN, nil
		}
		if cfg.DBName == "" {
			return "", "", fmt.Errorf("sqlite3 needs database.dsn or database.dbname")
		}
		return "sqlite3", cfg.DBName + ".db", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close closes the connection pool. Typically called on application shutdown.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	err := s.DB.Close()
	log.Info().Msg("Database: connection closed")
	return err
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
