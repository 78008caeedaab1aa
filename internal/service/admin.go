package service

import (
	"context"
	"errors"
	"fmt"
	"starterlock/internal/audit"
	"starterlock/internal/constants"
	"starterlock/internal/domain"
	"starterlock/internal/middleware"
	"starterlock/internal/state"
	"sync/atomic"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrPlayerNotFound = domain.ErrPlayerNotFound

// Console is the actor for operations that did not come from a player.
var Console = domain.PlayerIdentity{ID: uuid.Nil, Name: "CONSOLE"}

const bulkConcurrency = 4

type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error)
	FindByName(ctx context.Context, name string) (*domain.PlayerRecord, error)
	SetLocked(ctx context.Context, id uuid.UUID, locked bool, actor uuid.UUID, reason string) error
	List(ctx context.Context, limit, offset int) ([]*domain.PlayerRecord, error)
	Count(ctx context.Context) (int, error)
	FlushPending(ctx context.Context) (flushed, failed int)
	Stats() state.Stats
}

type Reconciler interface {
	LockPlayer(ctx context.Context, id uuid.UUID)
	UnlockPlayer(ctx context.Context, id uuid.UUID)
}

// Sessions is the set of players currently online.
type Sessions interface {
	Online() []domain.PlayerIdentity
	Lookup(name string) (domain.PlayerIdentity, bool)
	Notify(id uuid.UUID, message string) bool
}

type Reloader interface {
	Reload() error
}

type Auditor interface {
	Record(e audit.Event)
}

type PlayerStatus struct {
	Record *domain.PlayerRecord
	Online bool
}

type BulkResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
}

type FlushResult struct {
	Flushed int `json:"flushed"`
	Failed  int `json:"failed"`
}

type Page struct {
	Players []*domain.PlayerRecord
	Total   int
}

type AdminService struct {
	cache      Cache
	reconciler Reconciler
	sessions   Sessions
	reloader   Reloader
	audit      Auditor
	logger     zerolog.Logger
}

func NewAdminService(
	cache Cache,
	reconciler Reconciler,
	sessions Sessions,
	reloader Reloader,
	auditor Auditor,
	logger zerolog.Logger,
) *AdminService {
	return &AdminService{
		cache:      cache,
		reconciler: reconciler,
		sessions:   sessions,
		reloader:   reloader,
		audit:      auditor,
		logger:     logger.With().Str("component", "admin").Logger(),
	}
}

func (s *AdminService) opLogger(ctx context.Context, op string, actor domain.PlayerIdentity) zerolog.Logger {
	c := s.logger.With().Str("op", op).Str("actor", actor.Name)
	if id, err := gonanoid.New(); err == nil {
		c = c.Str("op_id", id)
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		c = c.Str("request_id", requestID)
	}
	return c.Logger()
}

// resolve finds a player by name, preferring the online player with that
// name over older records.
func (s *AdminService) resolve(ctx context.Context, name string) (*domain.PlayerRecord, bool, error) {
	if who, ok := s.sessions.Lookup(name); ok {
		record, err := s.cache.Get(ctx, who.ID)
		if err != nil {
			return nil, true, err
		}
		if record != nil {
			return record, true, nil
		}
	}

	record, err := s.cache.FindByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	return record, false, nil
}

func (s *AdminService) Status(ctx context.Context, name string) (*PlayerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	record, online, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return &PlayerStatus{Record: record, Online: online}, nil
}

func (s *AdminService) Lock(ctx context.Context, actor domain.PlayerIdentity, name, reason string) (*domain.PlayerRecord, error) {
	return s.setLocked(ctx, actor, name, true, reason)
}

func (s *AdminService) Unlock(ctx context.Context, actor domain.PlayerIdentity, name string) (*domain.PlayerRecord, error) {
	return s.setLocked(ctx, actor, name, false, "")
}

func (s *AdminService) setLocked(ctx context.Context, actor domain.PlayerIdentity, name string, locked bool, reason string) (*domain.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	logger := s.opLogger(ctx, string(domain.LockAction(locked)), actor)

	record, online, err := s.resolve(ctx, name)
	if err != nil {
		logger.Info().Err(err).Str("name", name).Msg("player lookup failed")
		return nil, err
	}

	if err := s.cache.SetLocked(ctx, record.ID, locked, actor.ID, reason); err != nil {
		logger.Error().Err(err).Str("uuid", record.ID.String()).Msg("failed to change lock state")
		return nil, err
	}

	if online {
		s.push(ctx, record.ID, locked)
		s.sessions.Notify(record.ID, lockMessage(locked, reason))
	}

	logger.Info().
		Str("uuid", record.ID.String()).
		Str("name", record.Name).
		Bool("locked", locked).
		Bool("online", online).
		Msg("lock state changed")

	updated, err := s.cache.Get(ctx, record.ID)
	if err != nil || updated == nil {
		return record, nil
	}
	return updated, nil
}

func (s *AdminService) push(ctx context.Context, id uuid.UUID, locked bool) {
	if locked {
		s.reconciler.LockPlayer(ctx, id)
	} else {
		s.reconciler.UnlockPlayer(ctx, id)
	}
}

func lockMessage(locked bool, reason string) string {
	if !locked {
		return "Your starter selection has been unlocked."
	}
	if reason == "" {
		return "Your starter selection has been locked."
	}
	return "Your starter selection has been locked: " + reason
}

func (s *AdminService) LockAll(ctx context.Context, actor domain.PlayerIdentity, reason string) (BulkResult, error) {
	return s.setAll(ctx, actor, true, reason)
}

func (s *AdminService) UnlockAll(ctx context.Context, actor domain.PlayerIdentity) (BulkResult, error) {
	return s.setAll(ctx, actor, false, "")
}

// setAll changes every online player. Failures are logged and counted out;
// the result reports how many succeeded.
func (s *AdminService) setAll(ctx context.Context, actor domain.PlayerIdentity, locked bool, reason string) (BulkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	logger := s.opLogger(ctx, string(domain.LockAction(locked))+"_ALL", actor)
	online := s.sessions.Online()

	var succeeded atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for _, who := range online {
		who := who
		g.Go(func() error {
			err := s.cache.SetLocked(gCtx, who.ID, locked, actor.ID, reason)
			if err != nil {
				if !errors.Is(err, ErrPlayerNotFound) {
					logger.Warn().Err(err).Str("name", who.Name).Msg("bulk update failed for player")
				}
				return nil
			}
			s.push(gCtx, who.ID, locked)
			s.sessions.Notify(who.ID, lockMessage(locked, reason))
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Total: len(online), Succeeded: int(succeeded.Load())}
	logger.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Msg("bulk lock state changed")
	return result, nil
}

func (s *AdminService) Reload(ctx context.Context, actor domain.PlayerIdentity) error {
	logger := s.opLogger(ctx, "RELOAD", actor)

	if err := s.reloader.Reload(); err != nil {
		logger.Error().Err(err).Msg("reload failed")
		return fmt.Errorf("failed to reload: %w", err)
	}

	s.audit.Record(audit.Event{Kind: audit.KindReload, Player: actor.Name, ID: actor.ID})
	logger.Info().Msg("settings reloaded")
	return nil
}

func (s *AdminService) Flush(ctx context.Context) FlushResult {
	flushed, failed := s.cache.FlushPending(ctx)
	return FlushResult{Flushed: flushed, Failed: failed}
}

func (s *AdminService) List(ctx context.Context, limit, offset int) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	var players []*domain.PlayerRecord
	var total int

	g.Go(func() error {
		var err error
		players, err = s.cache.List(gCtx, limit, offset)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.cache.Count(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("failed to list players")
		return nil, err
	}
	return &Page{Players: players, Total: total}, nil
}

func (s *AdminService) Stats() state.Stats {
	return s.cache.Stats()
}
