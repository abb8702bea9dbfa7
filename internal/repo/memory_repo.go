package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type MemoryRepo struct {
	db *sql.DB
}

func NewMemoryRepo(db *sql.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

// Insert writes one memory entry. Entries are write-once; a second insert
// carrying the same origin message maps to ErrConflict so curator replays
// stay idempotent.
func (r *MemoryRepo) Insert(ctx context.Context, entry *model.MemoryEntry) error {
	const query = `
		INSERT INTO memory_entries (id, chat_id, kind, text, embedding, importance, origin_message_id, supersedes_id, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var chatID interface{}
	if entry.ChatID != "" {
		chatID = entry.ChatID
	}
	var supersedes interface{}
	if entry.SupersedesID != "" {
		supersedes = entry.SupersedesID
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		chatID,
		entry.Kind,
		entry.Text,
		pgvector.NewVector(entry.Embedding),
		entry.Importance,
		entry.OriginMessageID,
		supersedes,
		entry.Ctime,
	)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// ListForChat returns the chat's own entries plus cross-chat factual
// entries, embeddings included. Ranking happens in the caller with the same
// scorer used for chunks.
func (r *MemoryRepo) ListForChat(ctx context.Context, chatID string) ([]model.MemoryEntry, error) {
	const query = `
		SELECT id, chat_id, kind, text, embedding, importance, origin_message_id, supersedes_id, ctime
		FROM memory_entries
		WHERE chat_id = $1 OR (chat_id IS NULL AND kind = $2)
		ORDER BY ctime, id
	`
	rows, err := r.db.QueryContext(ctx, query, chatID, model.MemoryKindFactual)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.MemoryEntry
	for rows.Next() {
		var entry model.MemoryEntry
		var embedding pgvector.Vector
		var entryChatID, supersedes sql.NullString
		if err := rows.Scan(&entry.ID, &entryChatID, &entry.Kind, &entry.Text, &embedding, &entry.Importance, &entry.OriginMessageID, &supersedes, &entry.Ctime); err != nil {
			return nil, err
		}
		entry.ChatID = entryChatID.String
		entry.SupersedesID = supersedes.String
		entry.Embedding = embedding.Slice()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListPage returns a page of the chat's entries, newest first, optionally
// filtered by kind. Embeddings are not loaded; this is a browsing surface.
func (r *MemoryRepo) ListPage(ctx context.Context, chatID string, kind string, limit, offset int) ([]model.MemoryEntry, error) {
	where := map[string]interface{}{"chat_id": chatID, "_orderby": "ctime desc"}
	if kind != "" {
		where["kind"] = kind
	}
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		where["_limit"] = []uint{uint(offset), uint(limit)}
	}
	sqlStr, args, err := builder.BuildSelect("memory_entries",
		where,
		[]string{"id", "chat_id", "kind", "text", "importance", "origin_message_id", "supersedes_id", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]model.MemoryEntry, 0)
	for rows.Next() {
		var entry model.MemoryEntry
		var entryChatID, supersedes sql.NullString
		if err := rows.Scan(&entry.ID, &entryChatID, &entry.Kind, &entry.Text, &entry.Importance, &entry.OriginMessageID, &supersedes, &entry.Ctime); err != nil {
			return nil, err
		}
		entry.ChatID = entryChatID.String
		entry.SupersedesID = supersedes.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *MemoryRepo) ExistsByOrigin(ctx context.Context, chatID string, originMessageID int64) (bool, error) {
	const query = `SELECT 1 FROM memory_entries WHERE chat_id = $1 AND origin_message_id = $2`
	row := r.db.QueryRowContext(ctx, query, chatID, originMessageID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteStale prunes entries last written before the cutoff whose importance
// is below the floor. Returns the number of rows removed.
func (r *MemoryRepo) DeleteStale(ctx context.Context, cutoff int64, importanceFloor float64) (int64, error) {
	const query = `DELETE FROM memory_entries WHERE ctime < $1 AND importance < $2`
	res, err := r.db.ExecContext(ctx, query, cutoff, importanceFloor)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
