package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// ContentNodeRepository manages persistence for the formation hierarchy.
type ContentNodeRepository struct {
	db *sqlx.DB
}

// NewContentNodeRepository constructs a ContentNodeRepository.
func NewContentNodeRepository(db *sqlx.DB) *ContentNodeRepository {
	return &ContentNodeRepository{db: db}
}

// ListByFormation returns every node of a formation, active or not. The tree
// builder filters on Active so deactivation shows up on the next rebuild.
func (r *ContentNodeRepository) ListByFormation(ctx context.Context, formationID string) ([]models.ContentNode, error) {
	const query = `SELECT id, formation_id, parent_id, kind, title, order_index, duration_minutes, passing_score, active, created_at, updated_at
        FROM content_nodes WHERE formation_id = $1 ORDER BY order_index`
	var nodes []models.ContentNode
	if err := r.db.SelectContext(ctx, &nodes, query, formationID); err != nil {
		return nil, fmt.Errorf("list content nodes: %w", err)
	}
	return nodes, nil
}

// Upsert writes one node, used by the authoring sync.
func (r *ContentNodeRepository) Upsert(ctx context.Context, node *models.ContentNode) error {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	const query = `INSERT INTO content_nodes (id, formation_id, parent_id, kind, title, order_index, duration_minutes, passing_score, active, created_at, updated_at)
        VALUES (:id, :formation_id, :parent_id, :kind, :title, :order_index, :duration_minutes, :passing_score, :active, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            parent_id = EXCLUDED.parent_id,
            kind = EXCLUDED.kind,
            title = EXCLUDED.title,
            order_index = EXCLUDED.order_index,
            duration_minutes = EXCLUDED.duration_minutes,
            passing_score = EXCLUDED.passing_score,
            active = EXCLUDED.active,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, node); err != nil {
		return fmt.Errorf("upsert content node: %w", err)
	}
	return nil
}

// ListFormations returns the distinct formation ids present in the catalog.
func (r *ContentNodeRepository) ListFormations(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT formation_id FROM content_nodes ORDER BY formation_id`); err != nil {
		return nil, fmt.Errorf("list formations: %w", err)
	}
	return ids, nil
}
