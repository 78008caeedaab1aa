package game

import (
	"context"
	"starterlock/internal/audit"
	"starterlock/internal/bridge"
	"starterlock/internal/domain"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Cache interface {
	GetOrCreate(ctx context.Context, who domain.PlayerIdentity) (*domain.PlayerRecord, error)
	Save(ctx context.Context, id uuid.UUID) error
	Invalidate(ctx context.Context, id uuid.UUID)
}

type Reconciler interface {
	OnJoin(p bridge.Player)
}

type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

type Auditor interface {
	Record(e audit.Event)
}

// Joiner runs the join and quit pipeline. Store work goes to the worker
// pool so the accept loop and the world never wait on it.
type Joiner struct {
	cache      Cache
	reconciler Reconciler
	sessions   *Sessions
	dispatcher Dispatcher
	audit      Auditor
	logger     zerolog.Logger
}

func NewJoiner(
	cache Cache,
	reconciler Reconciler,
	sessions *Sessions,
	dispatcher Dispatcher,
	auditor Auditor,
	logger zerolog.Logger,
) *Joiner {
	return &Joiner{
		cache:      cache,
		reconciler: reconciler,
		sessions:   sessions,
		dispatcher: dispatcher,
		audit:      auditor,
		logger:     logger.With().Str("component", "join").Logger(),
	}
}

// Accept registers a newly connected player and attaches the quit handler.
func (j *Joiner) Accept(p *player.Player) {
	j.sessions.Add(p)
	p.Handle(&Handler{joiner: j})
	j.Join(domain.PlayerIdentity{ID: p.UUID(), Name: p.Name()})
}

// Join loads or creates the record, then schedules the push into the
// starter mod.
func (j *Joiner) Join(who domain.PlayerIdentity) {
	j.submit("join", func(ctx context.Context) {
		record, err := j.cache.GetOrCreate(ctx, who)
		if err != nil {
			j.logger.Error().Err(err).Str("name", who.Name).Msg("join pipeline aborted")
			return
		}

		j.audit.Record(audit.Event{
			Kind:   audit.KindJoin,
			Player: who.Name,
			ID:     who.ID,
			Detail: joinDetail(record),
		})
		j.reconciler.OnJoin(identity(who))
	})
}

// Quit drops the session, saves the cached record and releases it. A record
// that could not be saved stays cached for the next flush.
func (j *Joiner) Quit(id uuid.UUID) {
	j.sessions.Remove(id)
	j.submit("quit_save", func(ctx context.Context) {
		if err := j.cache.Save(ctx, id); err != nil {
			j.logger.Warn().Err(err).Str("uuid", id.String()).Msg("save on quit failed, will retry on next flush")
			return
		}
		j.cache.Invalidate(ctx, id)
	})
}

func (j *Joiner) submit(name string, fn func(ctx context.Context)) {
	if j.dispatcher.Submit(name, fn) {
		return
	}
	j.logger.Warn().Str("job", name).Msg("worker pool unavailable, running inline")
	fn(context.Background())
}

func joinDetail(r *domain.PlayerRecord) string {
	switch {
	case r.Selected:
		return "selected"
	case r.Locked:
		return "locked"
	default:
		return "unlocked"
	}
}

// offlinePlayer carries a joining player's identity to the reconciler,
// which re-resolves the live player on the world transaction.
type offlinePlayer struct {
	id   uuid.UUID
	name string
}

func identity(who domain.PlayerIdentity) bridge.Player {
	return offlinePlayer{id: who.ID, name: who.Name}
}

func (p offlinePlayer) UUID() uuid.UUID { return p.id }
func (p offlinePlayer) Name() string    { return p.name }
