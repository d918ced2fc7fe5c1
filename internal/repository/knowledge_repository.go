package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/synthara/forge-api/internal/models"
)

type KnowledgeRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.KnowledgeDocument, error)
}

type knowledgeRepository struct {
	db *sql.DB
}

func NewKnowledgeRepository(db *sql.DB) KnowledgeRepository {
	return &knowledgeRepository{db: db}
}

func (r *knowledgeRepository) GetByIDs(ctx context.Context, ids []string) ([]models.KnowledgeDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, user_id, title, content, created_at
		FROM knowledge_documents
		WHERE id = ANY($1)
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var doc models.KnowledgeDocument
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
