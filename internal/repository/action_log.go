package repository

import (
	"context"
	"fmt"
	"starterlock/internal/database"
	"starterlock/internal/db"
	"starterlock/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ActionLogRepository struct {
	queries *db.Queries
	logger  zerolog.Logger
}

func NewActionLogRepository(queries *db.Queries, logger zerolog.Logger) *ActionLogRepository {
	return &ActionLogRepository{queries: queries, logger: logger}
}

func (r *ActionLogRepository) Append(ctx context.Context, entry domain.ActionLogEntry) error {
	err := r.queries.InsertActionLog(ctx, db.InsertActionLogParams{
		PlayerUuid: entry.PlayerID.String(),
		ActionType: string(entry.Kind),
		ActionBy:   nullUUID(entry.Actor),
		ActionData: nullString(entry.Payload),
		Timestamp:  toMillis(entry.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("failed to append %s for %s: %w", entry.Kind, entry.PlayerID, database.Classify(err))
	}
	return nil
}

func (r *ActionLogRepository) Count(ctx context.Context, id uuid.UUID, kind domain.ActionKind) (int, error) {
	count, err := r.queries.CountActionLogByPlayer(ctx, id.String(), string(kind))
	if err != nil {
		return 0, database.Classify(err)
	}
	return int(count), nil
}
