// Package api holds the admin HTTP API's wire types and a client for it.
package api

import (
	"starterlock/internal/domain"
	"time"

	"github.com/google/uuid"
)

type Player struct {
	UUID       string     `json:"uuid"`
	Name       string     `json:"name"`
	Locked     bool       `json:"locked"`
	Selected   bool       `json:"selected"`
	LockReason string     `json:"lock_reason,omitempty"`
	LockedBy   string     `json:"locked_by,omitempty"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Online     bool       `json:"online"`
}

func PlayerFromRecord(r *domain.PlayerRecord, online bool) Player {
	p := Player{
		UUID:       r.ID.String(),
		Name:       r.Name,
		Locked:     r.Locked,
		Selected:   r.Selected,
		LockReason: r.LockReason,
		FirstSeen:  r.FirstSeen,
		LastSeen:   r.LastSeen,
		UpdatedAt:  r.UpdatedAt,
		Online:     online,
	}
	if r.LockedBy != uuid.Nil {
		p.LockedBy = r.LockedBy.String()
	}
	if !r.LockedAt.IsZero() {
		at := r.LockedAt
		p.LockedAt = &at
	}
	return p
}

type PlayerList struct {
	Players []Player `json:"players"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

type LockRequest struct {
	Reason string `json:"reason"`
}

type BulkResponse struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
}

type FlushResponse struct {
	Flushed int `json:"flushed"`
	Failed  int `json:"failed"`
}

type Health struct {
	Status       string `json:"status"`
	CacheEntries int    `json:"cache_entries"`
	CacheDirty   int    `json:"cache_dirty"`
}

type Error struct {
	Error string `json:"error"`
}

// OperatorHeader names the operator on whose behalf a request is made.
const OperatorHeader = "X-Operator"
