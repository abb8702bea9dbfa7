package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docchat/internal/model"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ListByScope loads every chunk of the given documents, embeddings included,
// ordered by document then ordinal index. Scoring happens in the caller.
func (r *ChunkRepo) ListByScope(ctx context.Context, documentIDs []string) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, document_id, ordinal_index, text, embedding, page_number
		FROM chunks
		WHERE document_id IN (?)
		ORDER BY document_id, ordinal_index
	`
	query, args, err := sqlx.In(query, documentIDs)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var chunk model.Chunk
		var embedding pgvector.Vector
		var page sql.NullInt64
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.OrdinalIndex, &chunk.Text, &embedding, &page); err != nil {
			return nil, err
		}
		chunk.Embedding = embedding.Slice()
		if page.Valid {
			p := int(page.Int64)
			chunk.PageNumber = &p
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const query = `
		INSERT INTO chunks (id, document_id, ordinal_index, text, embedding, page_number)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		var page interface{}
		if chunk.PageNumber != nil {
			page = *chunk.PageNumber
		}
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID,
			chunk.DocumentID,
			chunk.OrdinalIndex,
			chunk.Text,
			pgvector.NewVector(chunk.Embedding),
			page,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
