package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlayerRecord is the lock and selection state of one player.
// Zero values of LockReason, LockedBy and LockedAt mean "absent".
type PlayerRecord struct {
	ID         uuid.UUID
	Name       string
	Locked     bool
	Selected   bool
	LockReason string
	LockedBy   uuid.UUID
	LockedAt   time.Time
	FirstSeen  time.Time
	LastSeen   time.Time
	UpdatedAt  time.Time
}

// NewPlayerRecord builds the record for a player seen for the first time.
func NewPlayerRecord(id uuid.UUID, name string, autoLock bool, now time.Time) *PlayerRecord {
	r := &PlayerRecord{
		ID:        id,
		Name:      name,
		FirstSeen: now,
		LastSeen:  now,
		UpdatedAt: now,
	}
	if autoLock {
		r.Locked = true
		r.LockedAt = now
	}
	return r
}

func (r *PlayerRecord) Lock(by uuid.UUID, reason string, now time.Time) {
	r.Locked = true
	r.LockedBy = by
	r.LockReason = reason
	r.LockedAt = now
	r.UpdatedAt = now
}

// Unlock clears the lock and every field that describes it.
func (r *PlayerRecord) Unlock(now time.Time) {
	r.Locked = false
	r.LockedBy = uuid.Nil
	r.LockReason = ""
	r.LockedAt = time.Time{}
	r.UpdatedAt = now
}

// MarkSelected flags the starter as chosen. It reports false if it already was.
func (r *PlayerRecord) MarkSelected(now time.Time) bool {
	if r.Selected {
		return false
	}
	r.Selected = true
	r.UpdatedAt = now
	return true
}

// Touch records a join under the given display name.
func (r *PlayerRecord) Touch(name string, now time.Time) {
	if name != "" {
		r.Name = name
	}
	r.LastSeen = now
	r.UpdatedAt = now
}

// ShouldBlock reports whether the content module must be told the player
// already chose, which hides the selection from them.
func (r *PlayerRecord) ShouldBlock() bool {
	return r.Locked && !r.Selected
}

func (r *PlayerRecord) Clone() *PlayerRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
