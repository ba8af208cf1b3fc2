// Package repositorytest provides in-memory repository implementations for
// unit tests. Error injection hooks let tests exercise failure paths
// without a database.
package repositorytest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
)

type WebhookEventStore struct {
	mu     sync.Mutex
	Events map[uuid.UUID]*model.WebhookEvent

	ClaimErr  error
	CreateErr error
}

var _ repository.WebhookEventRepository = (*WebhookEventStore)(nil)

func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{Events: make(map[uuid.UUID]*model.WebhookEvent)}
}

func (s *WebhookEventStore) Create(ctx context.Context, event *model.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	copied := *event
	s.Events[event.ID] = &copied
	return nil
}

func (s *WebhookEventStore) Get(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.Events[id]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (s *WebhookEventStore) GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.Events {
		if event.EventID != nil && *event.EventID == eventID {
			copied := *event
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *WebhookEventStore) GetPendingByCourseAndEmail(ctx context.Context, courseID, email string) (*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.Events {
		if event.CourseID == courseID && event.LearnerEmail == email && event.Status != model.WebhookStatusProcessed {
			copied := *event
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *WebhookEventStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClaimErr != nil {
		return false, s.ClaimErr
	}
	event, ok := s.Events[id]
	if !ok || event.Status != model.WebhookStatusReceived {
		return false, nil
	}
	event.Status = model.WebhookStatusProcessing
	event.Attempts++
	event.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.Events[id]; ok {
		now := time.Now().UTC()
		event.Status = model.WebhookStatusProcessed
		event.ProcessedAt = &now
		event.UpdatedAt = now
	}
	return nil
}

func (s *WebhookEventStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.Events[id]; ok {
		event.Status = model.WebhookStatusFailed
		event.ErrorMessage = &errMsg
		if event.Attempts == 0 {
			event.Attempts = 1
		}
		event.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *WebhookEventStore) ResetForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.Events[id]
	if !ok {
		return false, nil
	}
	if event.Status != model.WebhookStatusFailed && event.Status != model.WebhookStatusProcessing {
		return false, nil
	}
	event.Status = model.WebhookStatusReceived
	event.ErrorMessage = nil
	event.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *WebhookEventStore) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WebhookEvent
	for _, event := range s.Events {
		if event.Attempts >= maxAttempts {
			continue
		}
		failed := event.Status == model.WebhookStatusFailed
		stale := event.Status == model.WebhookStatusProcessing && event.UpdatedAt.Before(staleBefore)
		if failed || stale {
			copied := *event
			out = append(out, &copied)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *WebhookEventStore) List(ctx context.Context, filter model.WebhookListFilter) ([]*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WebhookEvent
	for _, event := range s.Events {
		if filter.Status != nil && event.Status != *filter.Status {
			continue
		}
		copied := *event
		out = append(out, &copied)
	}
	return out, nil
}

type LearnerStore struct {
	mu       sync.Mutex
	Learners map[uuid.UUID]*model.Learner

	UpdateProgressErr error
}

var _ repository.LearnerRepository = (*LearnerStore)(nil)

func NewLearnerStore() *LearnerStore {
	return &LearnerStore{Learners: make(map[uuid.UUID]*model.Learner)}
}

func (s *LearnerStore) Add(learner *model.Learner) *model.Learner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if learner.ID == uuid.Nil {
		learner.ID = uuid.New()
	}
	copied := *learner
	s.Learners[learner.ID] = &copied
	return learner
}

func (s *LearnerStore) Snapshot(id uuid.UUID) *model.Learner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if learner, ok := s.Learners[id]; ok {
		copied := *learner
		return &copied
	}
	return nil
}

func (s *LearnerStore) GetByCourseAndEmail(ctx context.Context, courseID, email string) (*model.Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, learner := range s.Learners {
		if learner.CourseID == courseID && learner.Email == email {
			copied := *learner
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *LearnerStore) ListEnrolled(ctx context.Context, limit int) ([]*model.Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Learner
	for _, learner := range s.Learners {
		switch learner.EnrollmentStatus {
		case model.EnrollmentStatusEnrolled, model.EnrollmentStatusPending, model.EnrollmentStatusInProgress:
			if learner.CourseID == "" {
				continue
			}
			copied := *learner
			out = append(out, &copied)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *LearnerStore) ListCompletedForOrg(ctx context.Context, website string) ([]*model.Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Learner
	for _, learner := range s.Learners {
		if learner.OrganizationWebsite == website && learner.CompletionDate != nil {
			copied := *learner
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *LearnerStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress model.LearnerProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateProgressErr != nil {
		return s.UpdateProgressErr
	}
	learner, ok := s.Learners[id]
	if !ok {
		return errNotFound
	}
	if progress.Completed {
		learner.EnrollmentStatus = model.EnrollmentStatusCompleted
	} else {
		learner.EnrollmentStatus = model.EnrollmentStatusInProgress
	}
	learner.CompletionPercentage = progress.Percentage
	data := progress.CompletionData
	learner.CompletionData = &data
	return nil
}

func (s *LearnerStore) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	learner, ok := s.Learners[id]
	if !ok {
		return errNotFound
	}
	learner.EnrollmentStatus = model.EnrollmentStatusCompleted
	if learner.CompletionDate == nil {
		learner.CompletionDate = &completedAt
	}
	return nil
}

func (s *LearnerStore) SetCertificateFile(ctx context.Context, id uuid.UUID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	learner, ok := s.Learners[id]
	if !ok {
		return errNotFound
	}
	learner.CertificateFileID = &fileID
	return nil
}

func (s *LearnerStore) SetSendStatus(ctx context.Context, id uuid.UUID, status model.CertificateSendStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	learner, ok := s.Learners[id]
	if !ok {
		return errNotFound
	}
	learner.CertificateSendStatus = status
	learner.SendFailureReason = reason
	return nil
}

func (s *LearnerStore) TouchResendAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	learner, ok := s.Learners[id]
	if !ok {
		return errNotFound
	}
	learner.LastResendAttempt = &at
	return nil
}

type CourseStore struct {
	Courses map[string]*model.Course
}

var _ repository.CourseRepository = (*CourseStore)(nil)

func NewCourseStore(courses ...*model.Course) *CourseStore {
	s := &CourseStore{Courses: make(map[string]*model.Course)}
	for _, course := range courses {
		s.Courses[course.CourseID] = course
	}
	return s
}

func (s *CourseStore) GetByCourseID(ctx context.Context, courseID string) (*model.Course, error) {
	course, ok := s.Courses[courseID]
	if !ok {
		return nil, nil
	}
	return course, nil
}

type OrganizationStore struct {
	Orgs map[string]*model.Organization
}

var _ repository.OrganizationRepository = (*OrganizationStore)(nil)

func NewOrganizationStore(orgs ...*model.Organization) *OrganizationStore {
	s := &OrganizationStore{Orgs: make(map[string]*model.Organization)}
	for _, org := range orgs {
		s.Orgs[org.Website] = org
	}
	return s
}

func (s *OrganizationStore) GetByWebsite(ctx context.Context, website string) (*model.Organization, error) {
	org, ok := s.Orgs[website]
	if !ok {
		return nil, nil
	}
	return org, nil
}

type EmailLogStore struct {
	mu      sync.Mutex
	Entries []*model.EmailLog
}

var _ repository.EmailLogRepository = (*EmailLogStore)(nil)

func NewEmailLogStore() *EmailLogStore {
	return &EmailLogStore{}
}

func (s *EmailLogStore) Create(ctx context.Context, entry *model.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.Entries = append(s.Entries, &copied)
	return nil
}

func (s *EmailLogStore) ListByLearner(ctx context.Context, learnerEmail, courseID string) ([]*model.EmailLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EmailLog
	for _, entry := range s.Entries {
		if entry.LearnerEmail == learnerEmail && entry.CourseID == courseID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}
