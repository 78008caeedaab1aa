package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	DB      DBConfig
	Cache   CacheConfig
	Starter StarterConfig

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogAttempts bool   `env:"LOG_ATTEMPTS" envDefault:"true"`
	AuditDir    string `env:"AUDIT_DIR" envDefault:"logs"`
	GameAddr    string `env:"GAME_ADDR" envDefault:":19132"`

	AdminAddr string `env:"ADMIN_ADDR" envDefault:"127.0.0.1:8080"`
	// AdminToken is the bearer token every admin request must carry. The
	// admin API refuses all requests while it is empty.
	AdminToken string `env:"ADMIN_TOKEN"`
	// AdminOrigins lists the browser origins allowed to call the admin API.
	AdminOrigins []string `env:"ADMIN_ORIGINS" envSeparator:","`
}

type DBConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	Path     string `env:"DB_PATH" envDefault:"data.db"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"3306"`
	Name     string `env:"DB_NAME" envDefault:"starterlock"`
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`

	PoolMaxSize     int           `env:"DB_POOL_MAX_SIZE" envDefault:"10"`
	PoolMinIdle     int           `env:"DB_POOL_MIN_IDLE" envDefault:"2"`
	PoolMaxLifetime time.Duration `env:"DB_POOL_MAX_LIFETIME" envDefault:"30m"`
	ConnTimeout     time.Duration `env:"DB_POOL_CONN_TIMEOUT" envDefault:"30s"`
}

type CacheConfig struct {
	Duration      time.Duration `env:"CACHE_DURATION" envDefault:"5m"`
	MaxSize       int           `env:"MAX_CACHE_SIZE" envDefault:"1000"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"1m"`
}

// StarterConfig holds the settings that reload can swap at runtime.
type StarterConfig struct {
	BlockEnabled       bool          `env:"STARTER_BLOCK_ENABLED" envDefault:"true"`
	AutoLockNewPlayers bool          `env:"AUTO_LOCK_NEW_PLAYERS" envDefault:"true"`
	AllowBypass        bool          `env:"ALLOW_BYPASS" envDefault:"true"`
	BypassPlayers      []string      `env:"BYPASS_PLAYERS" envSeparator:","`
	Operators          []string      `env:"OPERATORS" envSeparator:","`
	SettleDelay        time.Duration `env:"SETTLE_DELAY" envDefault:"2s"`
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_driver", cfg.DB.Driver).
		Str("admin_addr", cfg.AdminAddr).
		Str("log_level", cfg.LogLevel).
		Dur("cache_duration", cfg.Cache.Duration).
		Int("max_cache_size", cfg.Cache.MaxSize).
		Bool("auto_lock", cfg.Starter.AutoLockNewPlayers).
		Msg("configuration loaded")

	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN is not set, the admin API will reject every request")
	}

	return cfg, nil
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.DB.Host == "" || c.DB.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Cache.Duration <= 0 {
		return fmt.Errorf("CACHE_DURATION must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("MAX_CACHE_SIZE must be positive")
	}
	if c.Cache.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL must be positive")
	}
	if c.DB.PoolMaxSize <= 0 {
		return fmt.Errorf("DB_POOL_MAX_SIZE must be positive")
	}
	return nil
}
