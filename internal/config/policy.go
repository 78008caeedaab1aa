package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Policy is the live view of StarterConfig. Every read goes through it so a
// reload takes effect without restarting the cache or the bridge.
type Policy struct {
	mu      sync.RWMutex
	starter StarterConfig
	logger  zerolog.Logger
}

func NewPolicy(cfg *Config, logger zerolog.Logger) *Policy {
	return &Policy{starter: cfg.Starter, logger: logger}
}

func (p *Policy) snapshot() StarterConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.starter
}

func (p *Policy) Set(s StarterConfig) {
	p.mu.Lock()
	p.starter = s
	p.mu.Unlock()
}

func (p *Policy) BlockEnabled() bool       { return p.snapshot().BlockEnabled }
func (p *Policy) AutoLockNewPlayers() bool { return p.snapshot().AutoLockNewPlayers }

func (p *Policy) IsOperator(id uuid.UUID, name string) bool {
	return matches(p.snapshot().Operators, id, name)
}

// HasBypass reports whether the player holds the bypass permission and bypass
// is enabled at all.
func (p *Policy) HasBypass(id uuid.UUID, name string) bool {
	s := p.snapshot()
	return s.AllowBypass && matches(s.BypassPlayers, id, name)
}

// Reload re-reads .env and the environment and swaps the starter settings.
func (p *Policy) Reload() error {
	if err := godotenv.Overload(); err != nil {
		p.logger.Debug().Msg(".env file not found on reload")
	}

	var s StarterConfig
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	p.Set(s)

	p.logger.Info().
		Bool("block_enabled", s.BlockEnabled).
		Bool("auto_lock", s.AutoLockNewPlayers).
		Int("operators", len(s.Operators)).
		Int("bypass_players", len(s.BypassPlayers)).
		Msg("starter policy reloaded")
	return nil
}

func matches(list []string, id uuid.UUID, name string) bool {
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if parsed, err := uuid.Parse(entry); err == nil {
			if parsed == id {
				return true
			}
			continue
		}
		if name != "" && strings.EqualFold(entry, name) {
			return true
		}
	}
	return false
}
