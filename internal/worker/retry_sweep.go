package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// RetrySweep re-admits recoverable events: failed ones, and processing ones
// stale long enough to mean a crashed invocation. Events at the attempts
// cap stay failed for inspection.
type RetrySweep struct {
	events      repository.WebhookEventRepository
	worker      *certificate.Worker
	maxAttempts int
	staleAfter  time.Duration
	batchSize   int
	logger      *logger.Logger
}

func NewRetrySweep(events repository.WebhookEventRepository, worker *certificate.Worker, maxAttempts int, staleAfter time.Duration, batchSize int, log *logger.Logger) *RetrySweep {
	return &RetrySweep{
		events:      events,
		worker:      worker,
		maxAttempts: maxAttempts,
		staleAfter:  staleAfter,
		batchSize:   batchSize,
		logger:      log,
	}
}

// SweepResult reports one sweep run.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Reset     int `json:"reset"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (s *RetrySweep) Run(ctx context.Context) (*SweepResult, error) {
	staleBefore := time.Now().UTC().Add(-s.staleAfter)
	events, err := s.events.ListRetryable(ctx, s.maxAttempts, staleBefore, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable events: %w", err)
	}

	result := &SweepResult{Scanned: len(events)}
	for _, event := range events {
		reset, err := s.events.ResetForRetry(ctx, event.ID)
		if err != nil {
			result.Failed++
			s.logger.Error(err, "failed to reset webhook event", "event", event.ID.String())
			continue
		}
		if !reset {
			// Raced by a live worker; leave it alone.
			continue
		}
		result.Reset++

		if err := s.worker.Process(ctx, event.ID); err != nil {
			result.Failed++
			s.logger.Error(err, "retried webhook event failed again", "event", event.ID.String(), "attempts", event.Attempts+1)
			continue
		}
		result.Succeeded++
	}

	if result.Scanned > 0 {
		s.logger.Info("retry sweep finished",
			"scanned", result.Scanned,
			"reset", result.Reset,
			"succeeded", result.Succeeded,
			"failed", result.Failed)
	}
	return result, nil
}

// RetryOne services the admin RETRY_WEBHOOK action for a single event,
// regardless of the staleness window but still through the conditional
// reset.
func (s *RetrySweep) RetryOne(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if event == nil {
		return apperrors.NotFound(apperrors.CodeWebhookNotFound, "webhook event not found")
	}

	switch event.Status {
	case model.WebhookStatusReceived:
		// Never claimed; no reset needed.
		return s.worker.Process(ctx, eventID)
	case model.WebhookStatusProcessed:
		return apperrors.BadRequest(apperrors.CodeInvalidAction, "webhook event already processed; use RESEND_CERTIFICATE instead")
	}

	reset, err := s.events.ResetForRetry(ctx, eventID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !reset {
		return apperrors.BadRequest(apperrors.CodeInvalidAction, fmt.Sprintf("webhook event in state %s cannot be retried", event.Status))
	}

	return s.worker.Process(ctx, eventID)
}
