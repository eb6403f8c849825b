package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/confidant-bot/confidant/internal/models"
)

// AuditRepository archives moderation decisions in Postgres. The
// archive is a supplement to the visible audit trail: it survives
// message deletion and is queryable over the admin API.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts one moderation decision.
func (r *AuditRepository) Record(ctx context.Context, evt *models.ModerationEvent) error {
	const query = `
		INSERT INTO moderation_events (message_id, action, actor, title)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query, evt.MessageID, evt.Action, evt.Actor, evt.Title); err != nil {
		return fmt.Errorf("record moderation event: %w", err)
	}
	return nil
}

// List returns the most recent moderation decisions, newest first.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]models.ModerationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, message_id, action, actor, title, created_at
		FROM moderation_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	events := []models.ModerationEvent{}
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("list moderation events: %w", err)
	}
	return events, nil
}
