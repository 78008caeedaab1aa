package game

import (
	"fmt"
	"starterlock/internal/logger"

	"github.com/df-mc/dragonfly/server"
	"github.com/rs/zerolog"
)

// Host owns the dragonfly server and its accept loop.
type Host struct {
	addr   string
	joiner *Joiner
	logger zerolog.Logger
	srv    *server.Server
}

func NewHost(addr string, joiner *Joiner, logger zerolog.Logger) *Host {
	return &Host{
		addr:   addr,
		joiner: joiner,
		logger: logger.With().Str("component", "host").Logger(),
	}
}

func (h *Host) Start() error {
	uc := server.DefaultConfig()
	uc.Network.Address = h.addr

	conf, err := uc.Config(logger.Slog(h.logger))
	if err != nil {
		return fmt.Errorf("failed to build server config: %w", err)
	}

	h.srv = conf.New()
	h.srv.Listen()

	go func() {
		for p := range h.srv.Accept() {
			h.joiner.Accept(p)
		}
		h.logger.Info().Msg("accept loop stopped")
	}()

	h.logger.Info().Str("addr", h.addr).Msg("game server listening")
	return nil
}

func (h *Host) Close() error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Close()
}
