package db

import (
	"context"
	"database/sql"
)

type InsertActionLogParams struct {
	PlayerUuid string
	ActionType string
	ActionBy   sql.NullString
	ActionData sql.NullString
	Timestamp  int64
}

const insertActionLog = `INSERT INTO action_log (player_uuid, action_type, action_by, action_data, timestamp)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertActionLog(ctx context.Context, arg InsertActionLogParams) error {
	_, err := q.db.ExecContext(ctx, insertActionLog,
		arg.PlayerUuid,
		arg.ActionType,
		arg.ActionBy,
		arg.ActionData,
		arg.Timestamp,
	)
	return err
}

const countActionLogByPlayer = `SELECT COUNT(*) FROM action_log WHERE player_uuid = ? AND action_type = ?`

// CountActionLogByPlayer exists for operators and tests; the core never reads the log.
func (q *Queries) CountActionLogByPlayer(ctx context.Context, playerUuid, actionType string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActionLogByPlayer, playerUuid, actionType)
	var count int64
	err := row.Scan(&count)
	return count, err
}
