package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/graphy"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

// BatchResult reports one poller run. Per-learner errors are counted, not
// raised; the batch always runs to the end.
type BatchResult struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

// Service detects course completions the push webhook missed by asking the
// LMS directly, then synthesizes equivalent events.
type Service struct {
	learners repository.LearnerRepository
	events   repository.WebhookEventRepository
	lms      *graphy.Client
	worker   *certificate.Worker
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(learners repository.LearnerRepository, events repository.WebhookEventRepository, lms *graphy.Client, worker *certificate.Worker, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		learners: learners,
		events:   events,
		lms:      lms,
		worker:   worker,
		logger:   log,
		metrics:  m,
	}
}

func (s *Service) ProcessBatch(ctx context.Context, batchSize int) (*BatchResult, error) {
	learners, err := s.learners.ListEnrolled(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list poller candidates: %w", err)
	}

	result := &BatchResult{}
	for _, learner := range learners {
		result.Processed++
		s.metrics.PollerLearnersChecked.Inc()

		completed, err := s.checkLearner(ctx, learner)
		if err != nil {
			result.Errors++
			s.metrics.PollerErrors.Inc()
			s.logger.Error(err, "completion check failed", "email", learner.Email, "course", learner.CourseID)
			continue
		}
		if completed {
			result.Completed++
			s.metrics.PollerCompletions.Inc()
		}
	}

	s.logger.Info("completion poll finished",
		"processed", result.Processed,
		"completed", result.Completed,
		"errors", result.Errors)
	return result, nil
}

// checkLearner fetches upstream progress for one learner and either
// records progress or drives the full completion path.
func (s *Service) checkLearner(ctx context.Context, learner *model.Learner) (bool, error) {
	data, err := s.lms.GetLearnerData(ctx, learner.Email)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, fmt.Errorf("learner %s unknown to LMS", learner.Email)
	}

	course := data.Course(learner.CourseID)
	if course == nil {
		return false, fmt.Errorf("course %s not present in LMS data for %s", learner.CourseID, learner.Email)
	}

	snapshot, err := json.Marshal(course)
	if err != nil {
		return false, fmt.Errorf("failed to snapshot completion data: %w", err)
	}

	progress := model.LearnerProgress{
		Percentage:     course.Progress,
		Completed:      course.Completed(),
		CompletionData: string(snapshot),
	}
	if err := s.learners.UpdateProgress(ctx, learner.ID, progress); err != nil {
		return false, err
	}

	if !progress.Completed {
		return false, nil
	}

	completedAt := time.Now().UTC()
	if err := s.learners.MarkCompleted(ctx, learner.ID, completedAt); err != nil {
		return false, err
	}

	// Synthesized events carry a deterministic-enough id so an overlapping
	// poll cannot double-issue within the same second.
	eventID := fmt.Sprintf("completion_%s_%s_%d", learner.Email, learner.CourseID, completedAt.Unix())

	existing, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		event := &model.WebhookEvent{
			Source:         "poller",
			EventID:        &eventID,
			CourseID:       learner.CourseID,
			LearnerEmail:   learner.Email,
			Payload:        snapshot,
			CompletionDate: &completedAt,
			Status:         model.WebhookStatusReceived,
		}
		if err := s.events.Create(ctx, event); err != nil {
			return false, err
		}
		existing = event
	}

	if err := s.worker.Process(ctx, existing.ID); err != nil {
		return true, fmt.Errorf("certificate pipeline failed for synthesized event: %w", err)
	}
	return true, nil
}
