package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"starterlock/internal/constants"
	"starterlock/internal/database"
	"starterlock/internal/db"
	"starterlock/internal/domain"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotFound = domain.ErrPlayerNotFound

type PlayerRepository struct {
	queries *db.Queries
	db      *sql.DB
	dialect database.Dialect
	logger  zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, queries *db.Queries, dialect database.Dialect, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		queries: queries,
		db:      sqlDB,
		dialect: dialect,
		logger:  logger,
	}
}

// Get returns (nil, nil) when no row exists.
func (r *PlayerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PlayerRecord, error) {
	row, err := r.queries.GetPlayerByUUID(ctx, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return toRecord(row)
}

// GetByName matches the display name case-insensitively. Names are not
// unique; the most recently seen player wins.
func (r *PlayerRepository) GetByName(ctx context.Context, name string) (*domain.PlayerRecord, error) {
	row, err := r.queries.GetPlayerByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return toRecord(row)
}

func (r *PlayerRepository) Upsert(ctx context.Context, record *domain.PlayerRecord) error {
	return r.upsert(ctx, r.queries, record)
}

func (r *PlayerRepository) upsert(ctx context.Context, q *db.Queries, record *domain.PlayerRecord) error {
	params := toUpsertParams(record)

	var err error
	switch r.dialect {
	case database.DialectMySQL:
		err = q.UpsertPlayerMySQL(ctx, params)
	default:
		err = q.UpsertPlayerSQLite(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", record.ID, database.Classify(err))
	}
	return nil
}

// UpsertBatch writes all records in one transaction, chunked to keep each
// round of statements short.
func (r *PlayerRepository) UpsertBatch(ctx context.Context, records []*domain.PlayerRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", database.Classify(err))
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	for i := 0; i < len(records); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(records) {
			end = len(records)
		}

		for _, record := range records[i:end] {
			if err := r.upsert(ctx, qtx, record); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// UpdateLockState writes only the lock columns. It returns ErrNotFound when
// no row matched.
func (r *PlayerRepository) UpdateLockState(ctx context.Context, id uuid.UUID, locked bool, actor uuid.UUID, reason string, at time.Time) error {
	params := db.UpdatePlayerLockStateParams{
		StarterLocked: locked,
		UpdatedAt:     toMillis(at),
		Uuid:          id.String(),
	}
	if locked {
		params.LockedBy = nullUUID(actor)
		params.LockReason = nullString(reason)
		params.LockedAt = sql.NullInt64{Int64: toMillis(at), Valid: true}
	}

	affected, err := r.queries.UpdatePlayerLockState(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to update lock state for %s: %w", id, database.Classify(err))
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.logger.Debug().
		Str("uuid", id.String()).
		Bool("locked", locked).
		Msg("lock state updated")
	return nil
}

// List pages through players, most recently seen first.
func (r *PlayerRepository) List(ctx context.Context, limit, offset int) ([]*domain.PlayerRecord, error) {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.queries.ListPlayers(ctx, db.ListPlayersParams{
		Limit:  int64(limit),
		Offset: int64(offset),
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	result := make([]*domain.PlayerRecord, 0, len(rows))
	for _, row := range rows {
		record, err := toRecord(row)
		if err != nil {
			r.logger.Warn().Err(err).Str("uuid", row.Uuid).Msg("skipping unreadable player row")
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	count, err := r.queries.CountPlayers(ctx)
	if err != nil {
		return 0, database.Classify(err)
	}
	return int(count), nil
}

func toRecord(row db.PlayerDatum) (*domain.PlayerRecord, error) {
	id, err := uuid.Parse(row.Uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", row.Uuid, err)
	}

	record := &domain.PlayerRecord{
		ID:         id,
		Name:       row.PlayerName,
		Locked:     row.StarterLocked,
		Selected:   row.StarterSelected,
		LockReason: row.LockReason.String,
		FirstSeen:  fromMillis(row.FirstJoin),
		LastSeen:   fromMillis(row.LastJoin),
		UpdatedAt:  fromMillis(row.UpdatedAt),
	}
	if row.LockedBy.Valid && row.LockedBy.String != "" {
		if by, err := uuid.Parse(row.LockedBy.String); err == nil {
			record.LockedBy = by
		}
	}
	// Older rows store 0 instead of NULL for "never locked".
	if row.LockedAt.Valid && row.LockedAt.Int64 > 0 {
		record.LockedAt = fromMillis(row.LockedAt.Int64)
	}
	return record, nil
}

func toUpsertParams(record *domain.PlayerRecord) db.UpsertPlayerParams {
	params := db.UpsertPlayerParams{
		Uuid:            record.ID.String(),
		PlayerName:      record.Name,
		StarterLocked:   record.Locked,
		StarterSelected: record.Selected,
		FirstJoin:       toMillis(record.FirstSeen),
		LastJoin:        toMillis(record.LastSeen),
		UpdatedAt:       toMillis(record.UpdatedAt),
	}
	if record.Locked {
		params.LockReason = nullString(record.LockReason)
		params.LockedBy = nullUUID(record.LockedBy)
		if !record.LockedAt.IsZero() {
			params.LockedAt = sql.NullInt64{Int64: toMillis(record.LockedAt), Valid: true}
		}
	}
	return params
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
