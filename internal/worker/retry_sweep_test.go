package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decet2025-sketch/cert-api/internal/email"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository/repositorytest"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/renderer"
	apperrors "github.com/decet2025-sketch/cert-api/pkg/errors"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

type stubMailer struct {
	sent int
	err  error
}

func (m *stubMailer) SendCertificate(ctx context.Context, req email.CertificateRequest) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent++
	return "<stub@cert-api>", nil
}

type sweepFixture struct {
	events   *repositorytest.WebhookEventStore
	learners *repositorytest.LearnerStore
	mailer   *stubMailer
	sweep    *RetrySweep
}

func newSweepFixture(t *testing.T, maxAttempts int, staleAfter time.Duration) *sweepFixture {
	t.Helper()

	log := logger.NewLogger(nil)
	m := metrics.NewWith(prometheus.NewRegistry(), "test")

	events := repositorytest.NewWebhookEventStore()
	learners := repositorytest.NewLearnerStore()
	mailer := &stubMailer{}

	// No local engine and no conversion API configured, so rendering always
	// degrades to the HTML path and never touches artifact storage.
	rend := renderer.NewService(renderer.Config{}, log, m)

	orgName := "Acme"
	worker := certificate.NewWorker(certificate.WorkerParams{
		Events:    events,
		Learners:  learners,
		Courses:   repositorytest.NewCourseStore(&model.Course{CourseID: "C1", Name: "Go Fundamentals", CertificateTemplateHTML: "<p>{learnerName}</p>"}),
		Orgs:      repositorytest.NewOrganizationStore(&model.Organization{Website: "acme.example", Name: &orgName, SOPEmail: "sop@acme.example"}),
		EmailLogs: repositorytest.NewEmailLogStore(),
		Renderer:  rend,
		Mailer:    mailer,
		Logger:    log,
		Metrics:   m,
	})

	return &sweepFixture{
		events:   events,
		learners: learners,
		mailer:   mailer,
		sweep:    NewRetrySweep(events, worker, maxAttempts, staleAfter, 50, log),
	}
}

func (f *sweepFixture) addLearner(t *testing.T) {
	t.Helper()
	completed := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	f.learners.Add(&model.Learner{
		Name:                "Ada Lovelace",
		Email:               "ada@acme.example",
		CourseID:            "C1",
		OrganizationWebsite: "acme.example",
		EnrollmentStatus:    model.EnrollmentStatusCompleted,
		CompletionDate:      &completed,
	})
}

func (f *sweepFixture) addEvent(t *testing.T, status model.WebhookStatus, attempts int, updatedAt time.Time) uuid.UUID {
	t.Helper()
	event := &model.WebhookEvent{
		Source:       "graphy",
		CourseID:     "C1",
		LearnerEmail: "ada@acme.example",
		Status:       status,
		Attempts:     attempts,
	}
	require.NoError(t, f.events.Create(context.Background(), event))
	f.events.Events[event.ID].UpdatedAt = updatedAt
	return event.ID
}

func TestRunRetriesFailedEvents(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusFailed, 1, time.Now().UTC())

	result, err := f.sweep.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Reset)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, f.mailer.sent)
	assert.Equal(t, model.WebhookStatusProcessed, f.events.Events[id].Status)
}

func TestRunLeavesExhaustedEventsFailed(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusFailed, 3, time.Now().UTC())

	result, err := f.sweep.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, model.WebhookStatusFailed, f.events.Events[id].Status)
	assert.Equal(t, 0, f.mailer.sent)
}

func TestRunResetsStaleProcessing(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusProcessing, 1, time.Now().UTC().Add(-2*time.Hour))

	result, err := f.sweep.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Reset)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, model.WebhookStatusProcessed, f.events.Events[id].Status)
}

func TestRunSkipsFreshProcessing(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusProcessing, 1, time.Now().UTC())

	result, err := f.sweep.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, model.WebhookStatusProcessing, f.events.Events[id].Status)
}

func TestRetryOneUnknownEvent(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)

	err := f.sweep.RetryOne(context.Background(), uuid.New())
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeWebhookNotFound, appErr.Code)
}

func TestRetryOneProcessedEvent(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusProcessed, 1, time.Now().UTC())

	err := f.sweep.RetryOne(context.Background(), id)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeInvalidAction, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
}

func TestRetryOneFailedEvent(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusFailed, 2, time.Now().UTC())

	require.NoError(t, f.sweep.RetryOne(context.Background(), id))
	assert.Equal(t, model.WebhookStatusProcessed, f.events.Events[id].Status)
}

func TestRetryOneReceivedEvent(t *testing.T) {
	f := newSweepFixture(t, 3, time.Hour)
	f.addLearner(t)
	id := f.addEvent(t, model.WebhookStatusReceived, 0, time.Now().UTC())

	require.NoError(t, f.sweep.RetryOne(context.Background(), id))
	assert.Equal(t, model.WebhookStatusProcessed, f.events.Events[id].Status)
}
