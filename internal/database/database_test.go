package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"starterlock/internal/config"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T, poolSize int) *config.Config {
	t.Helper()
	return &config.Config{
		DB: config.DBConfig{
			Driver:          config.DriverSQLite,
			Path:            filepath.Join(t.TempDir(), "starter.db"),
			PoolMaxSize:     poolSize,
			PoolMinIdle:     1,
			PoolMaxLifetime: time.Minute,
			ConnTimeout:     5 * time.Second,
		},
	}
}

func TestSQLitePoolIsForcedToOneConnection(t *testing.T) {
	db, err := New(sqliteConfig(t, 2), zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	cfg := sqliteConfig(t, 1)

	first, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	for _, table := range []string{"player_data", "action_log"} {
		var name string
		err := second.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var indexes int
	require.NoError(t, second.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes))
	assert.Equal(t, 3, indexes)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, DialectSQLite, DialectFor(&config.Config{DB: config.DBConfig{Driver: config.DriverSQLite}}))
	assert.Equal(t, DialectMySQL, DialectFor(&config.Config{DB: config.DBConfig{Driver: config.DriverMySQL}}))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.ErrorIs(t, Classify(sql.ErrConnDone), ErrUnavailable)
	assert.ErrorIs(t, Classify(context.DeadlineExceeded), ErrUnavailable)
	assert.ErrorIs(t, Classify(mysql.ErrInvalidConn), ErrUnavailable)
	assert.ErrorIs(t, Classify(fmt.Errorf("upsert: %w", mysql.ErrInvalidConn)), ErrUnavailable)

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	classified := Classify(fmt.Errorf("get player: %w", refused))
	assert.ErrorIs(t, classified, ErrUnavailable)
	var opErr *net.OpError
	assert.ErrorAs(t, classified, &opErr)

	plain := errors.New("syntax error")
	assert.Equal(t, plain, Classify(plain))
}
