package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type SummaryRepo struct {
	db *sql.DB
}

func NewSummaryRepo(db *sql.DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

func (r *SummaryRepo) Get(ctx context.Context, chatID string) (*model.ChatSummary, error) {
	const query = `
		SELECT chat_id, summary_text, covers_up_to_message_id, mtime
		FROM chat_summaries
		WHERE chat_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, chatID)
	var summary model.ChatSummary
	if err := row.Scan(&summary.ChatID, &summary.SummaryText, &summary.CoversUpToMessageID, &summary.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &summary, nil
}

// CompareAndSwap advances the single summary row for a chat. The write only
// lands when the stored coverage still equals expectedCoversUpTo, so two
// concurrent writers can never both advance the same window; the loser gets
// ErrMemoryConflict. expectedCoversUpTo 0 means no row exists yet.
func (r *SummaryRepo) CompareAndSwap(ctx context.Context, summary *model.ChatSummary, expectedCoversUpTo int64) error {
	if summary.CoversUpToMessageID <= expectedCoversUpTo {
		return appErr.ErrInvalid
	}
	if expectedCoversUpTo == 0 {
		const insert = `
			INSERT INTO chat_summaries (chat_id, summary_text, covers_up_to_message_id, mtime)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chat_id) DO NOTHING
		`
		res, err := r.db.ExecContext(ctx, insert, summary.ChatID, summary.SummaryText, summary.CoversUpToMessageID, summary.Mtime)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return appErr.ErrMemoryConflict
		}
		return nil
	}
	const update = `
		UPDATE chat_summaries
		SET summary_text = $1, covers_up_to_message_id = $2, mtime = $3
		WHERE chat_id = $4 AND covers_up_to_message_id = $5
	`
	res, err := r.db.ExecContext(ctx, update, summary.SummaryText, summary.CoversUpToMessageID, summary.Mtime, summary.ChatID, expectedCoversUpTo)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrMemoryConflict
	}
	return nil
}
