package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/model"
)

// WebhookEventRepository persists completion signals. Events are never
// deleted; terminal states are reached only through the worker or the
// retry sweep.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *model.WebhookEvent) error
	Get(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error)
	GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	// GetPendingByCourseAndEmail resolves the soft dedup key for legacy
	// webhooks that carry no event_id.
	GetPendingByCourseAndEmail(ctx context.Context, courseID, email string) (*model.WebhookEvent, error)
	// Claim flips received→processing and increments attempts in a single
	// conditional update. Returns false when the event was not in
	// received, i.e. another invocation holds or held it.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// ResetForRetry flips failed or processing back to received;
	// conditional, so a finished worker cannot be raced back into
	// received.
	ResetForRetry(ctx context.Context, id uuid.UUID) (bool, error)
	// ListRetryable returns failed events plus processing events stale
	// beyond the threshold, both under the attempts cap.
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*model.WebhookEvent, error)
	List(ctx context.Context, filter model.WebhookListFilter) ([]*model.WebhookEvent, error)
}

type LearnerRepository interface {
	GetByCourseAndEmail(ctx context.Context, courseID, email string) (*model.Learner, error)
	// ListEnrolled selects poller candidates: enrollment_status in
	// (enrolled, pending, in_progress) with a non-empty course_id.
	ListEnrolled(ctx context.Context, limit int) ([]*model.Learner, error)
	ListCompletedForOrg(ctx context.Context, website string) ([]*model.Learner, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress model.LearnerProgress) error
	// MarkCompleted sets completion_date only when it is still null.
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	SetCertificateFile(ctx context.Context, id uuid.UUID, fileID string) error
	SetSendStatus(ctx context.Context, id uuid.UUID, status model.CertificateSendStatus, reason *string) error
	TouchResendAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type CourseRepository interface {
	GetByCourseID(ctx context.Context, courseID string) (*model.Course, error)
}

type OrganizationRepository interface {
	GetByWebsite(ctx context.Context, website string) (*model.Organization, error)
}

// EmailLogRepository is append-only.
type EmailLogRepository interface {
	Create(ctx context.Context, log *model.EmailLog) error
	ListByLearner(ctx context.Context, learnerEmail, courseID string) ([]*model.EmailLog, error)
}
