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

type learnerRepository struct {
	BaseRepository
}

func NewLearnerRepository(base BaseRepository) repository.LearnerRepository {
	return &learnerRepository{base}
}

func (r *learnerRepository) GetByCourseAndEmail(ctx context.Context, courseID, email string) (*model.Learner, error) {
	query := `SELECT * FROM learners WHERE course_id = $1 AND email = $2`
	var learner model.Learner
	if err := r.db.GetContext(ctx, &learner, query, courseID, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get learner: %w", err)
	}
	return &learner, nil
}

func (r *learnerRepository) ListEnrolled(ctx context.Context, limit int) ([]*model.Learner, error) {
	query := `
		SELECT * FROM learners
		WHERE enrollment_status IN ('enrolled', 'pending', 'in_progress')
		AND course_id <> ''
		ORDER BY updated_at ASC
		LIMIT $1
	`
	var learners []*model.Learner
	if err := r.db.SelectContext(ctx, &learners, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list enrolled learners: %w", err)
	}
	return learners, nil
}

func (r *learnerRepository) ListCompletedForOrg(ctx context.Context, website string) ([]*model.Learner, error) {
	query := `
		SELECT * FROM learners
		WHERE organization_website = $1
		AND completion_date IS NOT NULL
		ORDER BY completion_date DESC
	`
	var learners []*model.Learner
	if err := r.db.SelectContext(ctx, &learners, query, website); err != nil {
		return nil, fmt.Errorf("failed to list completed learners: %w", err)
	}
	return learners, nil
}

func (r *learnerRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress model.LearnerProgress) error {
	// Progress-only updates must never touch completion_date; completion
	// goes through MarkCompleted.
	status := model.EnrollmentStatusInProgress
	if progress.Completed {
		status = model.EnrollmentStatusCompleted
	}
	query := `
		UPDATE learners
		SET enrollment_status = $2,
			completion_percentage = $3,
			completion_data = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, progress.Percentage, progress.CompletionData)
	if err != nil {
		return fmt.Errorf("failed to update learner progress: %w", err)
	}
	return requireRow(result, "learner")
}

func (r *learnerRepository) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	query := `
		UPDATE learners
		SET enrollment_status = 'completed',
			completion_date = COALESCE(completion_date, $2),
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, completedAt)
	if err != nil {
		return fmt.Errorf("failed to mark learner completed: %w", err)
	}
	return requireRow(result, "learner")
}

func (r *learnerRepository) SetCertificateFile(ctx context.Context, id uuid.UUID, fileID string) error {
	query := `
		UPDATE learners
		SET certificate_file_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, fileID)
	if err != nil {
		return fmt.Errorf("failed to set certificate file: %w", err)
	}
	return requireRow(result, "learner")
}

func (r *learnerRepository) SetSendStatus(ctx context.Context, id uuid.UUID, status model.CertificateSendStatus, reason *string) error {
	query := `
		UPDATE learners
		SET certificate_send_status = $2,
			send_failure_reason = $3,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("failed to set certificate send status: %w", err)
	}
	return requireRow(result, "learner")
}

func (r *learnerRepository) TouchResendAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE learners
		SET last_resend_attempt = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record resend attempt: %w", err)
	}
	return requireRow(result, "learner")
}

func requireRow(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found", entity)
	}
	return nil
}
