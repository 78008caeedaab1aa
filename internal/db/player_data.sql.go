package db

import (
	"context"
	"database/sql"
)

const playerColumns = `uuid, player_name, starter_locked, starter_selected, lock_reason, locked_by, locked_at, first_join, last_join, updated_at`

const getPlayerByUUID = `SELECT ` + playerColumns + ` FROM player_data WHERE uuid = ?`

func (q *Queries) GetPlayerByUUID(ctx context.Context, uuid string) (PlayerDatum, error) {
	row := q.db.QueryRowContext(ctx, getPlayerByUUID, uuid)
	return scanPlayer(row)
}

const getPlayerByName = `SELECT ` + playerColumns + ` FROM player_data
WHERE LOWER(player_name) = LOWER(?)
ORDER BY last_join DESC
LIMIT 1`

func (q *Queries) GetPlayerByName(ctx context.Context, playerName string) (PlayerDatum, error) {
	row := q.db.QueryRowContext(ctx, getPlayerByName, playerName)
	return scanPlayer(row)
}

type UpsertPlayerParams struct {
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

const upsertPlayerSQLite = `INSERT OR REPLACE INTO player_data (` + playerColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) UpsertPlayerSQLite(ctx context.Context, arg UpsertPlayerParams) error {
	_, err := q.db.ExecContext(ctx, upsertPlayerSQLite, arg.values()...)
	return err
}

// first_join keeps the value from the original insert.
const upsertPlayerMySQL = `INSERT INTO player_data (` + playerColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    player_name = VALUES(player_name),
    starter_locked = VALUES(starter_locked),
    starter_selected = VALUES(starter_selected),
    lock_reason = VALUES(lock_reason),
    locked_by = VALUES(locked_by),
    locked_at = VALUES(locked_at),
    last_join = VALUES(last_join),
    updated_at = VALUES(updated_at)`

func (q *Queries) UpsertPlayerMySQL(ctx context.Context, arg UpsertPlayerParams) error {
	_, err := q.db.ExecContext(ctx, upsertPlayerMySQL, arg.values()...)
	return err
}

func (arg UpsertPlayerParams) values() []interface{} {
	return []interface{}{
		arg.Uuid,
		arg.PlayerName,
		arg.StarterLocked,
		arg.StarterSelected,
		arg.LockReason,
		arg.LockedBy,
		arg.LockedAt,
		arg.FirstJoin,
		arg.LastJoin,
		arg.UpdatedAt,
	}
}

type UpdatePlayerLockStateParams struct {
	StarterLocked bool
	LockedBy      sql.NullString
	LockReason    sql.NullString
	LockedAt      sql.NullInt64
	UpdatedAt     int64
	Uuid          string
}

const updatePlayerLockState = `UPDATE player_data
SET starter_locked = ?, locked_by = ?, lock_reason = ?, locked_at = ?, updated_at = ?
WHERE uuid = ?`

func (q *Queries) UpdatePlayerLockState(ctx context.Context, arg UpdatePlayerLockStateParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePlayerLockState,
		arg.StarterLocked,
		arg.LockedBy,
		arg.LockReason,
		arg.LockedAt,
		arg.UpdatedAt,
		arg.Uuid,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type ListPlayersParams struct {
	Limit  int64
	Offset int64
}

const listPlayers = `SELECT ` + playerColumns + ` FROM player_data
ORDER BY last_join DESC
LIMIT ? OFFSET ?`

func (q *Queries) ListPlayers(ctx context.Context, arg ListPlayersParams) ([]PlayerDatum, error) {
	rows, err := q.db.QueryContext(ctx, listPlayers, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlayerDatum
	for rows.Next() {
		i, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countPlayers = `SELECT COUNT(*) FROM player_data`

func (q *Queries) CountPlayers(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPlayers)
	var count int64
	err := row.Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row scanner) (PlayerDatum, error) {
	var i PlayerDatum
	err := row.Scan(
		&i.Uuid,
		&i.PlayerName,
		&i.StarterLocked,
		&i.StarterSelected,
		&i.LockReason,
		&i.LockedBy,
		&i.LockedAt,
		&i.FirstJoin,
		&i.LastJoin,
		&i.UpdatedAt,
	)
	return i, err
}
