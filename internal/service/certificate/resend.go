package certificate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// Resender manufactures fresh webhook events for already-completed
// learners and pushes them through the worker synchronously. A processed
// event is never reprocessed under its original identity; re-entry always
// means a new event.
type Resender struct {
	events   repository.WebhookEventRepository
	learners repository.LearnerRepository
	worker   *Worker
	cooldown time.Duration
	logger   *logger.Logger
}

func NewResender(events repository.WebhookEventRepository, learners repository.LearnerRepository, worker *Worker, cooldown time.Duration, log *logger.Logger) *Resender {
	return &Resender{events: events, learners: learners, worker: worker, cooldown: cooldown, logger: log}
}

// Resend reissues one learner's certificate. Learners without a recorded
// completion are rejected before any event row is created.
func (r *Resender) Resend(ctx context.Context, learnerEmail, courseID string) error {
	learner, err := r.learners.GetByCourseAndEmail(ctx, courseID, learnerEmail)
	if err != nil {
		return apperrors.Internal(err)
	}
	if learner == nil {
		return apperrors.NotFound(apperrors.CodeLearnerNotFound, "learner not found for course and email")
	}
	if !learner.Completed() {
		return apperrors.BadRequest(apperrors.CodeLearnerNotCompleted, "learner has not completed the course")
	}
	if r.cooldown > 0 && learner.LastResendAttempt != nil && time.Since(*learner.LastResendAttempt) < r.cooldown {
		return apperrors.BadRequest(apperrors.CodeInvalidAction, "resend attempted too recently, try again later")
	}

	if err := r.learners.TouchResendAttempt(ctx, learner.ID, time.Now().UTC()); err != nil {
		r.logger.Error(err, "failed to stamp resend attempt", "email", learnerEmail, "course", courseID)
	}

	eventID := fmt.Sprintf("resend_%s_%s_%d", learnerEmail, courseID, time.Now().UnixNano())
	event := &model.WebhookEvent{
		Source:         "resend",
		EventID:        &eventID,
		CourseID:       courseID,
		LearnerEmail:   learnerEmail,
		CompletionDate: learner.CompletionDate,
		Status:         model.WebhookStatusReceived,
	}
	if err := r.events.Create(ctx, event); err != nil {
		return apperrors.Internal(err)
	}

	if err := r.worker.Process(ctx, event.ID); err != nil {
		return err
	}

	// The pipeline treats a failed send as a processed event with the
	// learner re-admitted; the resend caller still needs to know the mail
	// never went out.
	current, err := r.learners.GetByCourseAndEmail(ctx, courseID, learnerEmail)
	if err != nil {
		return apperrors.Internal(err)
	}
	if current != nil && current.CertificateSendStatus != model.SendStatusSent {
		message := "certificate email delivery failed"
		if current.SendFailureReason != nil && *current.SendFailureReason != "" {
			message = fmt.Sprintf("certificate email delivery failed: %s", *current.SendFailureReason)
		}
		return apperrors.New(apperrors.CodeEmailDelivery, http.StatusBadGateway, message)
	}
	return nil
}

// ResendOrganization fans Resend out over every completed learner of an
// organization and reports counts. One learner's failure never aborts the
// batch.
func (r *Resender) ResendOrganization(ctx context.Context, website string) (*model.ResendSummary, error) {
	learners, err := r.learners.ListCompletedForOrg(ctx, website)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(learners) == 0 {
		return nil, apperrors.NotFound(apperrors.CodeNoLearnersToResend, "no completed learners for organization")
	}

	summary := &model.ResendSummary{}
	for _, learner := range learners {
		summary.TotalProcessed++
		if err := r.Resend(ctx, learner.Email, learner.CourseID); err != nil {
			summary.FailedResends++
			r.logger.Error(err, "organization resend failed for learner", "email", learner.Email, "course", learner.CourseID)
			continue
		}
		summary.SuccessfulResends++
	}

	r.logger.Info("organization resend finished",
		"website", website,
		"total", summary.TotalProcessed,
		"succeeded", summary.SuccessfulResends,
		"failed", summary.FailedResends)
	return summary, nil
}
