package fx

import (
	"database/sql"
	"starterlock/internal/audit"
	"starterlock/internal/bridge"
	"starterlock/internal/clock"
	"starterlock/internal/config"
	"starterlock/internal/constants"
	"starterlock/internal/database"
	"starterlock/internal/db"
	"starterlock/internal/domain"
	"starterlock/internal/game"
	"starterlock/internal/logger"
	"starterlock/internal/repository"
	"starterlock/internal/server"
	"starterlock/internal/service"
	"starterlock/internal/state"
	"starterlock/internal/worker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideDialect(cfg *config.Config) database.Dialect {
	return database.DialectFor(cfg)
}

func ProvideClock() clock.Clock {
	return clock.New()
}

func ProvideCache(
	players *repository.PlayerRepository,
	actions *repository.ActionLogRepository,
	pool *worker.Pool,
	policy *config.Policy,
	clk clock.Clock,
	cfg *config.Config,
	logger zerolog.Logger,
) *state.Cache {
	opts := state.Options{Duration: cfg.Cache.Duration, MaxSize: cfg.Cache.MaxSize}
	return state.New(players, actions, pool, policy, clk, opts, logger)
}

func ProvideAudit(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) *audit.Log {
	return audit.New(cfg.AuditDir, clk, logger)
}

// ModParams carries the starter mod's host when another module supplies one.
type ModParams struct {
	fx.In

	Host bridge.StarterHost `optional:"true"`
}

func ProvideAdapter(p ModParams, logger zerolog.Logger) bridge.Adapter {
	var host any
	if p.Host != nil {
		host = p.Host
	}
	return bridge.Detect(host, logger)
}

func ProvideReconciler(
	adapter bridge.Adapter,
	cache *state.Cache,
	policy *config.Policy,
	sessions *game.Sessions,
	pool *worker.Pool,
	cfg *config.Config,
	logger zerolog.Logger,
) *bridge.Reconciler {
	opts := bridge.Options{SettleDelay: cfg.Starter.SettleDelay, LogAttempts: cfg.LogAttempts}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = constants.SettleDelay
	}
	return bridge.NewReconciler(adapter, cache, policy, sessions, pool, opts, logger)
}

func ProvideJoiner(
	cache *state.Cache,
	reconciler *bridge.Reconciler,
	sessions *game.Sessions,
	pool *worker.Pool,
	auditLog *audit.Log,
	logger zerolog.Logger,
) *game.Joiner {
	return game.NewJoiner(cache, reconciler, sessions, pool, auditLog, logger)
}

func ProvideHost(cfg *config.Config, joiner *game.Joiner, logger zerolog.Logger) *game.Host {
	return game.NewHost(cfg.GameAddr, joiner, logger)
}

func ProvideAdminService(
	cache *state.Cache,
	reconciler *bridge.Reconciler,
	sessions *game.Sessions,
	policy *config.Policy,
	auditLog *audit.Log,
	logger zerolog.Logger,
) *service.AdminService {
	return service.NewAdminService(cache, reconciler, sessions, policy, auditLog, logger)
}

func ProvideAdminServer(cfg *config.Config, admin *service.AdminService, sessions *game.Sessions, logger zerolog.Logger) *server.AdminServer {
	return server.NewAdminServer(admin, sessions, server.Options{
		Token:          cfg.AdminToken,
		AllowedOrigins: cfg.AdminOrigins,
	}, logger)
}

// WireAudit forwards store actions and blocked selections to the audit log.
func WireAudit(cache *state.Cache, reconciler *bridge.Reconciler, sessions *game.Sessions, auditLog *audit.Log) {
	cache.OnAction(func(e domain.ActionLogEntry) {
		auditLog.RecordAction(e, sessions.NameOf(e.PlayerID))
	})
	reconciler.OnBlocked(func(p bridge.Player) {
		auditLog.Record(audit.Event{Kind: audit.KindBlocked, Player: p.Name(), ID: p.UUID()})
	})
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(config.NewPolicy),
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	fx.Provide(ProvideDialect),
	fx.Provide(ProvideClock),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewActionLogRepository),
	// runtime
	fx.Provide(worker.NewDefault),
	fx.Provide(ProvideCache),
	fx.Provide(ProvideAudit),
	fx.Provide(game.NewSessions),
	fx.Provide(ProvideAdapter),
	fx.Provide(ProvideReconciler),
	fx.Provide(ProvideJoiner),
	fx.Provide(ProvideHost),
	// svc
	fx.Provide(ProvideAdminService),
	// server
	fx.Provide(ProvideAdminServer),
	fx.Invoke(WireAudit),
)
