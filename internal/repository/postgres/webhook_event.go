package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
)

type webhookEventRepository struct {
	BaseRepository
}

func NewWebhookEventRepository(base BaseRepository) repository.WebhookEventRepository {
	return &webhookEventRepository{base}
}

func (r *webhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	query := `
		INSERT INTO webhook_events (
			id, source, event_id, course_id, learner_email, payload,
			completion_date, status, attempts, received_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`
	event.ID = uuid.New()
	event.ReceivedAt = time.Now().UTC()
	event.UpdatedAt = event.ReceivedAt
	if event.Status == "" {
		event.Status = model.WebhookStatusReceived
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Source,
		event.EventID,
		event.CourseID,
		event.LearnerEmail,
		event.Payload,
		event.CompletionDate,
		event.Status,
		event.Attempts,
		event.ReceivedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) Get(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	query := `SELECT * FROM webhook_events WHERE id = $1`
	var event model.WebhookEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &event, nil
}

func (r *webhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	query := `SELECT * FROM webhook_events WHERE event_id = $1`
	var event model.WebhookEvent
	if err := r.db.GetContext(ctx, &event, query, eventID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event by event_id: %w", err)
	}
	return &event, nil
}

func (r *webhookEventRepository) GetPendingByCourseAndEmail(ctx context.Context, courseID, email string) (*model.WebhookEvent, error) {
	query := `
		SELECT * FROM webhook_events
		WHERE course_id = $1 AND learner_email = $2
		AND status IN ('received', 'processing')
		ORDER BY received_at DESC
		LIMIT 1
	`
	var event model.WebhookEvent
	if err := r.db.GetContext(ctx, &event, query, courseID, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending webhook event: %w", err)
	}
	return &event, nil
}

// Claim is the single conditional update guarding against double
// processing: the transition only fires while the row is still received.
func (r *webhookEventRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE webhook_events
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'received'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET status = 'processed', error_message = NULL,
			processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE webhook_events
		SET status = 'failed', error_message = $2,
			attempts = GREATEST(attempts, 1),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, errMsg); err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE webhook_events
		SET status = 'received', updated_at = NOW()
		WHERE id = $1 AND status IN ('failed', 'processing')
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to reset webhook event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *webhookEventRepository) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*model.WebhookEvent, error) {
	query := `
		SELECT * FROM webhook_events
		WHERE attempts < $1
		AND (status = 'failed' OR (status = 'processing' AND updated_at < $2))
		ORDER BY received_at ASC
		LIMIT $3
	`
	var events []*model.WebhookEvent
	err := r.db.SelectContext(ctx, &events, query, maxAttempts, staleBefore, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable webhook events: %w", err)
	}
	return events, nil
}

func (r *webhookEventRepository) List(ctx context.Context, filter model.WebhookListFilter) ([]*model.WebhookEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var events []*model.WebhookEvent
	var err error
	if filter.Status != nil {
		query := `
			SELECT * FROM webhook_events
			WHERE status = $1
			ORDER BY received_at DESC
			LIMIT $2 OFFSET $3
		`
		err = r.db.SelectContext(ctx, &events, query, *filter.Status, limit, filter.Offset)
	} else {
		query := `
			SELECT * FROM webhook_events
			ORDER BY received_at DESC
			LIMIT $1 OFFSET $2
		`
		err = r.db.SelectContext(ctx, &events, query, limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return events, nil
}
