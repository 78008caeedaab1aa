package db

import (
	"database/sql"
)

type PlayerDatum struct {
	Uuid            string
	PlayerName      string
	StarterLocked   bool
	StarterSelected bool
	LockReason      sql.NullString
	LockedBy        sql.NullString
	LockedAt        sql.NullInt64
	FirstJoin       int64
	LastJoin        int64
	UpdatedAt       int64
}

type ActionLog struct {
	ID         int64
	PlayerUuid string
	ActionType string
	ActionBy   sql.NullString
	ActionData sql.NullString
	Timestamp  int64
}
