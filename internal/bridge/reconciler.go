package bridge

import (
	"context"
	"errors"
	"starterlock/internal/constants"
	"starterlock/internal/domain"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error)
	// Peek returns the cached record without touching the store.
	Peek(id uuid.UUID) (*domain.PlayerRecord, bool)
	IsLocked(ctx context.Context, id uuid.UUID) bool
	MarkSelected(ctx context.Context, id uuid.UUID) (bool, error)
}

type Policy interface {
	BlockEnabled() bool
	HasBypass(id uuid.UUID, name string) bool
}

// Executor runs fn on the simulation thread with the online player. It
// reports false, without calling fn, when the player is offline.
type Executor interface {
	Exec(id uuid.UUID, fn func(p Player)) bool
}

type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

type Options struct {
	SettleDelay time.Duration
	LogAttempts bool
}

type decision int

const (
	decideNothing decision = iota
	decideBlock
	decideAllow
	decidePrompt
)

// Reconciler keeps the mod's flag in line with the lock state. State is
// always read off the simulation thread; only the adapter call runs on it.
type Reconciler struct {
	adapter    Adapter
	cache      Cache
	policy     Policy
	executor   Executor
	dispatcher Dispatcher
	opts       Options
	logger     zerolog.Logger

	after     func(d time.Duration, fn func())
	onBlocked func(p Player)
}

func NewReconciler(
	adapter Adapter,
	cache Cache,
	policy Policy,
	executor Executor,
	dispatcher Dispatcher,
	opts Options,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		adapter:    adapter,
		cache:      cache,
		policy:     policy,
		executor:   executor,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With().Str("component", "reconciler").Logger(),
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// OnBlocked registers fn to be called on the simulation thread whenever a
// player is denied the selection.
func (r *Reconciler) OnBlocked(fn func(p Player)) {
	r.onBlocked = fn
}

// Start subscribes to the mod's events.
func (r *Reconciler) Start() {
	err := r.adapter.Subscribe(Hooks{
		SelectionCompleted: r.SelectionCompleted,
		DataSynchronized:   r.DataSynchronized,
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("adapter", r.adapter.Name()).Msg("starter mod events unavailable")
	}
}

// OnJoin pushes the player's state once the settle delay has passed. It does
// nothing if the player left in the meantime.
func (r *Reconciler) OnJoin(p Player) {
	id := p.UUID()
	r.after(r.opts.SettleDelay, func() {
		r.dispatch("reconcile_join", func(ctx context.Context) {
			r.reconcile(ctx, id)
		})
	})
}

// DataSynchronized re-applies the player's state right away. It can run
// inside a world transaction, so it pushes to p directly and reads only the
// cache. A cache miss is reconciled on a worker, or dropped if none is free;
// the join reconcile still covers that player.
func (r *Reconciler) DataSynchronized(p Player) {
	if !r.policy.BlockEnabled() {
		return
	}

	id := p.UUID()
	record, ok := r.cache.Peek(id)
	if !ok {
		work := func(ctx context.Context) { r.reconcile(ctx, id) }
		if r.dispatcher == nil || !r.dispatcher.Submit("reconcile_sync", work) {
			r.logger.Debug().Str("uuid", id.String()).Msg("no cached state on data sync, skipped")
		}
		return
	}

	if d := decisionFor(record); d != decideNothing {
		r.push(p, d)
	}
}

// SelectionCompleted is the only path that sets Selected.
func (r *Reconciler) SelectionCompleted(id uuid.UUID) {
	r.dispatch("mark_selected", func(ctx context.Context) {
		changed, err := r.cache.MarkSelected(ctx, id)
		if err != nil {
			r.logger.Warn().Err(err).Str("uuid", id.String()).Msg("failed to record starter selection")
			return
		}
		if changed {
			r.logger.Info().Str("uuid", id.String()).Msg("starter selected")
		}
	})
}

// LockPlayer hides the selection from an online player who has not chosen.
func (r *Reconciler) LockPlayer(ctx context.Context, id uuid.UUID) {
	if !r.policy.BlockEnabled() || r.selected(ctx, id) {
		return
	}
	r.apply(id, decideBlock)
}

// UnlockPlayer shows the selection again and asks the mod to prompt for it.
func (r *Reconciler) UnlockPlayer(ctx context.Context, id uuid.UUID) {
	if !r.policy.BlockEnabled() || r.selected(ctx, id) {
		return
	}
	r.apply(id, decidePrompt)
}

func (r *Reconciler) reconcile(ctx context.Context, id uuid.UUID) {
	if d := r.decide(ctx, id); d != decideNothing {
		r.apply(id, d)
	}
}

func (r *Reconciler) decide(ctx context.Context, id uuid.UUID) decision {
	if !r.policy.BlockEnabled() {
		return decideNothing
	}

	record, err := r.cache.Get(ctx, id)
	if err != nil {
		r.logger.Debug().Err(err).Str("uuid", id.String()).Msg("using default lock state")
	}
	if record != nil {
		return decisionFor(record)
	}
	if r.cache.IsLocked(ctx, id) {
		return decideBlock
	}
	return decideAllow
}

func decisionFor(record *domain.PlayerRecord) decision {
	switch {
	case record.Selected:
		return decideNothing
	case record.ShouldBlock():
		return decideBlock
	default:
		return decideAllow
	}
}

func (r *Reconciler) selected(ctx context.Context, id uuid.UUID) bool {
	record, err := r.cache.Get(ctx, id)
	return err == nil && record != nil && record.Selected
}

func (r *Reconciler) apply(id uuid.UUID, d decision) {
	online := r.executor.Exec(id, func(p Player) {
		r.push(p, d)
	})
	if !online {
		r.logger.Debug().Str("uuid", id.String()).Msg("player offline, nothing to push")
	}
}

// push hands the decision to the adapter. The caller is already on the
// player's world transaction.
func (r *Reconciler) push(p Player, d decision) {
	if d == decideBlock && r.policy.HasBypass(p.UUID(), p.Name()) {
		r.logger.Debug().Str("player", p.Name()).Msg("player holds bypass")
		return
	}

	if err := r.adapter.SetSelectionBlocked(p, d == decideBlock); err != nil {
		r.logger.Debug().Err(err).Str("player", p.Name()).Msg("failed to push selection state")
		return
	}

	if d == decideBlock {
		if r.opts.LogAttempts {
			r.logger.Info().Str("player", p.Name()).Str("uuid", p.UUID().String()).Msg("starter selection blocked")
		}
		if r.onBlocked != nil {
			r.onBlocked(p)
		}
		return
	}

	if d != decidePrompt {
		return
	}
	if err := r.adapter.RequestSelection(p); err != nil && !errors.Is(err, ErrUnsupported) {
		r.logger.Debug().Err(err).Str("player", p.Name()).Msg("failed to request starter selection")
	}
}

func (r *Reconciler) dispatch(name string, fn func(ctx context.Context)) {
	if r.dispatcher != nil && r.dispatcher.Submit(name, fn) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	fn(ctx)
}
