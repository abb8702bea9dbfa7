package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// appendMaxAttempts bounds the seq retry loop. A writer loses one attempt per
// concurrent commit on the same chat, so the bound caps tolerated concurrency.
const appendMaxAttempts = 8

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores one message and assigns the next per-chat sequence number.
// Concurrent appends on one chat can compute the same seq; the losing insert
// is suppressed by ON CONFLICT, returns no row and is retried with a fresh MAX.
func (r *MessageRepo) Append(ctx context.Context, chatID, role, content string) (*model.Message, error) {
	const query = `
		INSERT INTO messages (chat_id, seq, role, content, ctime)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4 FROM messages WHERE chat_id = $1
		ON CONFLICT (chat_id, seq) DO NOTHING
		RETURNING seq
	`
	now := time.Now().UnixMilli()
	for attempt := 0; attempt < appendMaxAttempts; attempt++ {
		msg := &model.Message{ChatID: chatID, Role: role, Content: content, Ctime: now}
		err := r.db.QueryRowContext(ctx, query, chatID, role, content, now).Scan(&msg.Seq)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: message seq contention on chat %s", appErr.ErrConflict, chatID)
}

// ListAfter returns messages with seq greater than afterSeq, oldest first.
func (r *MessageRepo) ListAfter(ctx context.Context, chatID string, afterSeq int64, limit int) ([]model.Message, error) {
	const query = `
		SELECT seq, chat_id, role, content, ctime
		FROM messages
		WHERE chat_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, chatID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Seq, &msg.ChatID, &msg.Role, &msg.Content, &msg.Ctime); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) CountAfter(ctx context.Context, chatID string, afterSeq int64) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND seq > $2`
	row := r.db.QueryRowContext(ctx, query, chatID, afterSeq)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListRecent returns the latest limit messages in chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	const query = `
		SELECT seq, chat_id, role, content, ctime
		FROM (
			SELECT seq, chat_id, role, content, ctime
			FROM messages
			WHERE chat_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Seq, &msg.ChatID, &msg.Role, &msg.Content, &msg.Ctime); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
