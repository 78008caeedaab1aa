package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

func TestNewPlayerRecord(t *testing.T) {
	id := uuid.New()

	locked := NewPlayerRecord(id, "Red", true, now)
	assert.True(t, locked.Locked)
	assert.Equal(t, now, locked.LockedAt)
	assert.False(t, locked.Selected)
	assert.Equal(t, now, locked.FirstSeen)

	open := NewPlayerRecord(id, "Red", false, now)
	assert.False(t, open.Locked)
	assert.True(t, open.LockedAt.IsZero())
}

func TestLockUnlockRoundTrip(t *testing.T) {
	r := NewPlayerRecord(uuid.New(), "Red", false, now)
	actor := uuid.New()

	r.Lock(actor, "event", now.Add(time.Minute))
	assert.True(t, r.Locked)
	assert.Equal(t, actor, r.LockedBy)
	assert.Equal(t, "event", r.LockReason)
	assert.True(t, r.ShouldBlock())

	r.Unlock(now.Add(2 * time.Minute))
	assert.False(t, r.Locked)
	assert.Equal(t, uuid.Nil, r.LockedBy)
	assert.Empty(t, r.LockReason)
	assert.True(t, r.LockedAt.IsZero())
	assert.Equal(t, now.Add(2*time.Minute), r.UpdatedAt)
}

func TestMarkSelectedIsMonotonic(t *testing.T) {
	r := NewPlayerRecord(uuid.New(), "Red", true, now)

	assert.True(t, r.MarkSelected(now))
	assert.False(t, r.MarkSelected(now.Add(time.Hour)))
	assert.Equal(t, now, r.UpdatedAt)

	r.Unlock(now)
	r.Lock(uuid.Nil, "", now)
	assert.True(t, r.Selected)
	assert.False(t, r.ShouldBlock())
}

func TestTouchKeepsNameWhenEmpty(t *testing.T) {
	r := NewPlayerRecord(uuid.New(), "Red", false, now)

	r.Touch("", now.Add(time.Hour))
	assert.Equal(t, "Red", r.Name)
	assert.Equal(t, now.Add(time.Hour), r.LastSeen)

	r.Touch("Blue", now.Add(2*time.Hour))
	assert.Equal(t, "Blue", r.Name)
	assert.Equal(t, now, r.FirstSeen)
}

func TestClone(t *testing.T) {
	var nilRecord *PlayerRecord
	assert.Nil(t, nilRecord.Clone())

	r := NewPlayerRecord(uuid.New(), "Red", false, now)
	c := r.Clone()
	c.Name = "Other"
	assert.Equal(t, "Red", r.Name)
}

func TestLockAction(t *testing.T) {
	assert.Equal(t, ActionLock, LockAction(true))
	assert.Equal(t, ActionUnlock, LockAction(false))
}
