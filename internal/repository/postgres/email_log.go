package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
)

type emailLogRepository struct {
	BaseRepository
}

func NewEmailLogRepository(base BaseRepository) repository.EmailLogRepository {
	return &emailLogRepository{base}
}

func (r *emailLogRepository) Create(ctx context.Context, entry *model.EmailLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO email_logs (
			id, to_email, learner_email, course_id, subject,
			attachment_file_id, status, response, created_at
		) VALUES (
			:id, :to_email, :learner_email, :course_id, :subject,
			:attachment_file_id, :status, :response, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}

func (r *emailLogRepository) ListByLearner(ctx context.Context, learnerEmail, courseID string) ([]*model.EmailLog, error) {
	query := `
		SELECT * FROM email_logs
		WHERE learner_email = $1 AND course_id = $2
		ORDER BY created_at DESC
	`
	var entries []*model.EmailLog
	if err := r.db.SelectContext(ctx, &entries, query, learnerEmail, courseID); err != nil {
		return nil, fmt.Errorf("failed to list email logs: %w", err)
	}
	return entries, nil
}
