package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionLock            ActionKind = "LOCK"
	ActionUnlock          ActionKind = "UNLOCK"
	ActionStarterSelected ActionKind = "STARTER_SELECTED"
)

func LockAction(locked bool) ActionKind {
	if locked {
		return ActionLock
	}
	return ActionUnlock
}

// ActionLogEntry is one append-only audit row.
type ActionLogEntry struct {
	PlayerID  uuid.UUID
	Kind      ActionKind
	Actor     uuid.UUID // uuid.Nil for console or automatic actions
	Payload   string
	Timestamp time.Time
}

// PlayerIdentity is what a join event knows about a player.
type PlayerIdentity struct {
	ID   uuid.UUID
	Name string
}
