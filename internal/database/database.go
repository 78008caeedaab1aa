package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net"
	"starterlock/internal/config"
	"starterlock/internal/constants"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var embedMigrations embed.FS

// ErrUnavailable marks failures to reach the store at all, as opposed to a
// query that reached it and failed.
var ErrUnavailable = errors.New("database unavailable")

type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

func DialectFor(cfg *config.Config) Dialect {
	if cfg.DB.Driver == config.DriverMySQL {
		return DialectMySQL
	}
	return DialectSQLite
}

// New opens the configured backend, sizes its pool and applies the schema.
// Any error here is fatal to startup.
func New(cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	dialect := DialectFor(cfg)
	logger.Info().Str("dialect", string(dialect)).Msg("connecting to database")

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectMySQL:
		db, err = openMySQL(cfg)
	default:
		db, err = openSQLite(cfg, logger)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DB.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error().Err(err).Msg("failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		if err := optimizeSQLite(db, logger); err != nil {
			_ = db.Close()
			logger.Error().Err(err).Msg("failed to optimize SQLite")
			return nil, fmt.Errorf("failed to optimize SQLite: %w", err)
		}
	}

	if err := runMigrations(db, dialect, logger); err != nil {
		_ = db.Close()
		logger.Error().Err(err).Msg("failed to run migrations")
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().
		Int("max_open_conns", db.Stats().MaxOpenConnections).
		Msg("database connection established")
	return db, nil
}

func openSQLite(cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; a larger pool only produces SQLITE_BUSY.
	if cfg.DB.PoolMaxSize != constants.SQLiteMaxOpenConns {
		logger.Warn().
			Int("configured", cfg.DB.PoolMaxSize).
			Int("effective", constants.SQLiteMaxOpenConns).
			Msg("sqlite pool size overridden")
	}
	db.SetMaxOpenConns(constants.SQLiteMaxOpenConns)
	db.SetMaxIdleConns(constants.SQLiteMaxOpenConns)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func openMySQL(cfg *config.Config) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.DB.User
	mc.Passwd = cfg.DB.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DB.Host, strconv.Itoa(cfg.DB.Port))
	mc.DBName = cfg.DB.Name
	mc.Timeout = cfg.DB.ConnTimeout
	// Report matched rather than changed rows so an idempotent lock update
	// is not mistaken for a missing player.
	mc.ClientFoundRows = true
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	// database/sql has no minimum idle count; keeping MinIdle connections
	// around after use is the closest equivalent.
	idle := cfg.DB.PoolMinIdle
	if idle > cfg.DB.PoolMaxSize {
		idle = cfg.DB.PoolMaxSize
	}
	db.SetMaxOpenConns(cfg.DB.PoolMaxSize)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(cfg.DB.PoolMaxLifetime)
	return db, nil
}

func runMigrations(db *sql.DB, dialect Dialect, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	dir := "migrations/sqlite"
	if dialect == DialectMySQL {
		dir = "migrations/mysql"
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	logger.Info().Str("dir", dir).Msg("migrations completed successfully")
	return nil
}

func optimizeSQLite(sqlDB *sql.DB, logger zerolog.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"temp_store", "MEMORY"},
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := sqlDB.Exec(query); err != nil {
			logger.Warn().
				Err(err).
				Str("pragma", pragma.name).
				Str("value", pragma.value).
				Msg("failed to set pragma")
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		logger.Debug().
			Str("pragma", pragma.name).
			Str("value", pragma.value).
			Msg("SQLite pragma set")
	}

	return nil
}

// Classify tags connection-level failures with ErrUnavailable. The original
// error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
