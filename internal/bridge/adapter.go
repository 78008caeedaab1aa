// Package bridge pushes the lock decision into the starter mod's own
// "already chose" flag and listens for its selection events.
//
// The mod is reached through an Adapter picked once at startup by Detect.
// Callers never see which variant is in use.
package bridge

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrUnsupported = errors.New("operation not supported by starter mod")

// Player is the part of an online player the bridge needs. It is satisfied
// by *player.Player.
type Player interface {
	UUID() uuid.UUID
	Name() string
}

// Hooks are the mod events the reconciler reacts to. Either may be nil.
// DataSynchronized may be called on the world goroutine, inside a
// transaction, so it gets the player and must not go back through an
// Executor.
type Hooks struct {
	SelectionCompleted func(id uuid.UUID)
	DataSynchronized   func(p Player)
}

type Adapter interface {
	Name() string
	// SetSelectionBlocked marks the starter as already chosen (blocked) or
	// not chosen, which hides or shows the selection to the player.
	SetSelectionBlocked(p Player, blocked bool) error
	RequestSelection(p Player) error
	Subscribe(h Hooks) error
}

// StarterHost is implemented by mods that integrate with this plugin
// directly.
type StarterHost interface {
	SetStarterSelected(id uuid.UUID, selected bool) error
	RequestStarterSelection(id uuid.UUID) error
}

// StarterEvents is optionally implemented alongside StarterHost. Callbacks
// may fire from inside a world transaction.
type StarterEvents interface {
	OnStarterChosen(fn func(id uuid.UUID))
	OnDataSynchronized(fn func(id uuid.UUID))
}

// playerID stands in for a player when an event only carries the ID. It is
// enough for the adapters, which address the mod by ID.
type playerID uuid.UUID

func (p playerID) UUID() uuid.UUID { return uuid.UUID(p) }
func (p playerID) Name() string    { return uuid.UUID(p).String() }

// Detect picks the adapter for host. A nil host, or one that exposes nothing
// usable, yields the no-op adapter: state is still recorded but not enforced.
func Detect(host any, logger zerolog.Logger) Adapter {
	logger = logger.With().Str("component", "bridge").Logger()

	if host == nil {
		logger.Warn().Msg("starter mod not present, selection will not be enforced")
		return NewNoop()
	}

	if typed, ok := host.(StarterHost); ok {
		logger.Info().Str("adapter", "typed").Msg("starter mod detected")
		return newTypedAdapter(typed)
	}

	if adapter, ok := newReflectAdapter(host, logger); ok {
		logger.Info().Str("adapter", "reflect").Msg("starter mod detected")
		return adapter
	}

	logger.Warn().Msg("starter mod exposes no known accessors, selection will not be enforced")
	return NewNoop()
}
