package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/email"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/service/renderer"
	"github.com/decet2025-sketch/cert-api/internal/storage"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

// Worker turns one persisted webhook event into a rendered and delivered
// certificate. It is the only mutator of event status after creation.
type Worker struct {
	events    repository.WebhookEventRepository
	learners  repository.LearnerRepository
	courses   repository.CourseRepository
	orgs      repository.OrganizationRepository
	emailLogs repository.EmailLogRepository
	renderer  *renderer.Service
	mailer    email.Service
	store     storage.Store
	subject   string
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

type WorkerParams struct {
	Events    repository.WebhookEventRepository
	Learners  repository.LearnerRepository
	Courses   repository.CourseRepository
	Orgs      repository.OrganizationRepository
	EmailLogs repository.EmailLogRepository
	Renderer  *renderer.Service
	Mailer    email.Service
	Store     storage.Store
	Subject   string
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		events:    p.Events,
		learners:  p.Learners,
		courses:   p.Courses,
		orgs:      p.Orgs,
		emailLogs: p.EmailLogs,
		renderer:  p.Renderer,
		mailer:    p.Mailer,
		store:     p.Store,
		subject:   p.Subject,
		logger:    p.Logger,
		metrics:   p.Metrics,
	}
}

// Process runs the full pipeline for one event. A degraded delivery (HTML
// instead of PDF, or a failed send with the learner re-admitted to retry)
// still ends with the event processed; only hard pipeline failures mark it
// failed. The returned error carries the envelope code for synchronous
// callers.
func (w *Worker) Process(ctx context.Context, webhookEventID uuid.UUID) error {
	start := time.Now()

	event, err := w.events.Get(ctx, webhookEventID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if event == nil {
		return apperrors.NotFound(apperrors.CodeWebhookNotFound, "webhook event not found")
	}
	if event.Status == model.WebhookStatusProcessed {
		w.metrics.EventsDuplicate.Inc()
		return nil
	}

	claimed, err := w.events.Claim(ctx, event.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !claimed {
		// Lost the claim. Re-read to tell a finished duplicate apart from
		// an in-flight one; neither is an error for the caller.
		current, err := w.events.Get(ctx, event.ID)
		if err != nil {
			return apperrors.Internal(err)
		}
		switch {
		case current == nil:
			return apperrors.NotFound(apperrors.CodeWebhookNotFound, "webhook event not found")
		case current.Status == model.WebhookStatusProcessed:
			w.metrics.EventsDuplicate.Inc()
			return nil
		case current.Status == model.WebhookStatusProcessing:
			w.logger.Warn("webhook event already being processed", "event", event.ID.String())
			return nil
		default:
			return apperrors.New(apperrors.CodeInternal, 500, fmt.Sprintf("webhook event in state %s cannot be claimed", current.Status))
		}
	}

	if err := w.run(ctx, event); err != nil {
		appErr := apperrors.AsAppError(err)
		if markErr := w.events.MarkFailed(ctx, event.ID, appErr.Error()); markErr != nil {
			w.logger.Error(markErr, "failed to mark webhook event failed", "event", event.ID.String())
		}
		w.metrics.EventsFailed.Inc()
		return appErr
	}

	if err := w.events.MarkProcessed(ctx, event.ID); err != nil {
		return apperrors.Internal(err)
	}

	w.metrics.EventsProcessed.Inc()
	w.metrics.ProcessingLatency.Observe(time.Since(start).Seconds())
	return nil
}

// run executes steps that can hard-fail the event. Delivery outcome is
// recorded on the learner, never returned as an error: the pipeline
// succeeding and the email succeeding are deliberately separate facts.
func (w *Worker) run(ctx context.Context, event *model.WebhookEvent) error {
	log := w.logger.WithFields(map[string]interface{}{
		"event":  event.ID.String(),
		"course": event.CourseID,
		"email":  event.LearnerEmail,
	})

	learner, err := w.learners.GetByCourseAndEmail(ctx, event.CourseID, event.LearnerEmail)
	if err != nil {
		return apperrors.Internal(err)
	}
	if learner == nil {
		return apperrors.NotFound(apperrors.CodeLearnerNotFound, "learner not found for course and email")
	}

	// Events arriving outside the poller path may reach a learner with no
	// completion recorded yet.
	if learner.CompletionDate == nil {
		completedAt := time.Now().UTC()
		if event.CompletionDate != nil {
			completedAt = *event.CompletionDate
		}
		if err := w.learners.MarkCompleted(ctx, learner.ID, completedAt); err != nil {
			return apperrors.Internal(err)
		}
		learner.CompletionDate = &completedAt
	}

	course, err := w.courses.GetByCourseID(ctx, event.CourseID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if course == nil {
		return apperrors.NotFound(apperrors.CodeCourseNotFound, "course not found")
	}

	org, err := w.orgs.GetByWebsite(ctx, learner.OrganizationWebsite)
	if err != nil {
		return apperrors.Internal(err)
	}
	if org == nil {
		return apperrors.NotFound(apperrors.CodeOrganizationNotFound, "organization not found")
	}

	certCtx := model.CertificateContext{
		LearnerName:    learner.Name,
		LearnerEmail:   learner.Email,
		CourseName:     course.Name,
		Organization:   org.DisplayName(),
		CompletionDate: learner.CompletionDate.UTC().Format("2006-01-02"),
	}

	result, err := w.renderer.RenderCertificate(ctx, course.CertificateTemplateHTML, certCtx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodePDFGeneration, 500, "certificate rendering failed", err)
	}

	if len(result.PDF) > 0 {
		fileID, err := w.store.Put(ctx, result.PDF, result.Filename)
		if err != nil {
			// Storage is best-effort here; the in-memory bytes still reach
			// the email step.
			log.Error(err, "failed to persist certificate artifact, delivering from memory")
		} else if err := w.learners.SetCertificateFile(ctx, learner.ID, fileID); err != nil {
			log.Error(err, "failed to record certificate file on learner")
		} else {
			learner.CertificateFileID = &fileID
		}
	}

	w.deliver(ctx, log, event, learner, result, certCtx, org)
	return nil
}

func (w *Worker) deliver(ctx context.Context, log *logger.Logger, event *model.WebhookEvent, learner *model.Learner, result *renderer.Result, certCtx model.CertificateContext, org *model.Organization) {
	subject := w.buildSubject(certCtx)

	req := email.CertificateRequest{
		To:             org.SOPEmail,
		LearnerName:    certCtx.LearnerName,
		LearnerEmail:   certCtx.LearnerEmail,
		CourseName:     certCtx.CourseName,
		Organization:   certCtx.Organization,
		CompletionDate: certCtx.CompletionDate,
		Subject:        subject,
	}
	if result.HTMLFallback {
		req.HTMLBody = result.HTML
	} else {
		req.PDF = result.PDF
		req.PDFFilename = result.Filename
	}

	messageID, sendErr := w.mailer.SendCertificate(ctx, req)

	entry := &model.EmailLog{
		ToEmail:          org.SOPEmail,
		LearnerEmail:     learner.Email,
		CourseID:         learner.CourseID,
		Subject:          subject,
		AttachmentFileID: learner.CertificateFileID,
		Status:           model.EmailStatusSent,
		Response:         &messageID,
	}

	if sendErr != nil {
		w.metrics.EmailsFailed.Inc()
		reason := sendErr.Error()
		entry.Status = model.EmailStatusFailed
		entry.Response = &reason

		// Pending, not failed: the learner stays eligible for a later
		// resend instead of parking in a dead state.
		if err := w.learners.SetSendStatus(ctx, learner.ID, model.SendStatusPending, &reason); err != nil {
			log.Error(err, "failed to record delivery failure on learner")
		}
		log.Error(sendErr, "certificate delivery failed, learner re-admitted for retry")
	} else {
		w.metrics.EmailsSent.Inc()
		if err := w.learners.SetSendStatus(ctx, learner.ID, model.SendStatusSent, nil); err != nil {
			log.Error(err, "failed to record delivery success on learner")
		}
	}

	if err := w.emailLogs.Create(ctx, entry); err != nil {
		log.Error(err, "failed to append email log")
	}
}

func (w *Worker) buildSubject(ctx model.CertificateContext) string {
	subject := w.subject
	if subject == "" {
		subject = "Your certificate for {courseName}"
	}
	subject = strings.ReplaceAll(subject, "{courseName}", ctx.CourseName)
	subject = strings.ReplaceAll(subject, "{learnerName}", ctx.LearnerName)
	return subject
}
