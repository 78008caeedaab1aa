package main

import (
	"context"
	"database/sql"
	"net/http"
	"starterlock/internal/audit"
	"starterlock/internal/bridge"
	"starterlock/internal/config"
	"starterlock/internal/constants"
	fxmodules "starterlock/internal/fx"
	"starterlock/internal/game"
	"starterlock/internal/server"
	"starterlock/internal/service"
	"starterlock/internal/state"
	"starterlock/internal/worker"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	policy *config.Policy,
	db *sql.DB,
	pool *worker.Pool,
	cache *state.Cache,
	auditLog *audit.Log,
	reconciler *bridge.Reconciler,
	sessions *game.Sessions,
	host *game.Host,
	admin *service.AdminService,
	adminServer *server.AdminServer,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminServer.Handler(),
	}

	loopCtx, cancelLoops := context.WithCancel(context.Background())
	var loops sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pool.Start()

			loops.Add(2)
			go func() {
				defer loops.Done()
				cache.Run(loopCtx, cfg.Cache.FlushInterval)
			}()
			go func() {
				defer loops.Done()
				auditLog.Run(loopCtx, constants.AuditFlushInterval)
			}()

			reconciler.Start()
			game.RegisterCommands(admin, policy, sessions, pool, logger)

			if err := host.Start(); err != nil {
				return err
			}

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("admin server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("admin server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := host.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing game server")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("admin server shutdown failed")
			}

			cancelLoops()
			loops.Wait()

			if err := pool.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("worker pool did not drain")
			}

			if err := cache.SaveAll(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("failed to save players on shutdown")
			}

			if err := auditLog.Flush(); err != nil {
				logger.Warn().Err(err).Msg("failed to flush audit log")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("stopped gracefully")
			return nil
		},
	})
}
