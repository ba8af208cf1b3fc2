package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decet2025-sketch/cert-api/internal/email"
	"github.com/decet2025-sketch/cert-api/internal/handler"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository/repositorytest"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/renderer"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/messaging"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "webhook-secret"

type stubBroker struct {
	published []messaging.DispatchMessage
	err       error
}

func (b *stubBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, message.(messaging.DispatchMessage))
	return nil
}

func (b *stubBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBroker) Close() error { return nil }

type stubMailer struct {
	sent int
}

func (m *stubMailer) SendCertificate(ctx context.Context, req email.CertificateRequest) (string, error) {
	m.sent++
	return "<stub@cert-api>", nil
}

type webhookFixture struct {
	events *repositorytest.WebhookEventStore
	mailer *stubMailer
	router *gin.Engine
}

func newWebhookFixture(t *testing.T, broker messaging.Broker) *webhookFixture {
	t.Helper()

	log := logger.NewLogger(nil)
	m := metrics.NewWith(prometheus.NewRegistry(), "test")

	events := repositorytest.NewWebhookEventStore()
	learners := repositorytest.NewLearnerStore()
	completed := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	learners.Add(&model.Learner{
		Name:                "Ada Lovelace",
		Email:               "ada@acme.example",
		CourseID:            "C1",
		OrganizationWebsite: "acme.example",
		EnrollmentStatus:    model.EnrollmentStatusCompleted,
		CompletionDate:      &completed,
	})

	mailer := &stubMailer{}
	orgName := "Acme"
	worker := certificate.NewWorker(certificate.WorkerParams{
		Events:    events,
		Learners:  learners,
		Courses:   repositorytest.NewCourseStore(&model.Course{CourseID: "C1", Name: "Go Fundamentals", CertificateTemplateHTML: "<p>{learnerName}</p>"}),
		Orgs:      repositorytest.NewOrganizationStore(&model.Organization{Website: "acme.example", Name: &orgName, SOPEmail: "sop@acme.example"}),
		EmailLogs: repositorytest.NewEmailLogStore(),
		Renderer:  renderer.NewService(renderer.Config{}, log, m),
		Mailer:    mailer,
		Logger:    log,
		Metrics:   m,
	})

	f := &webhookFixture{events: events, mailer: mailer}
	h := NewHandler(events, worker, broker, testSecret, log)
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	f.router = router
	return f
}

func (f *webhookFixture) post(t *testing.T, body []byte, sign bool) (*httptest.ResponseRecorder, handler.Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/graphy", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write(body)
		req.Header.Set("X-Graphy-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var envelope handler.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func validBody(eventID string) []byte {
	payload := map[string]interface{}{
		"course_id": "C1",
		"email":     "ada@acme.example",
	}
	if eventID != "" {
		payload["event_id"] = eventID
	}
	body, _ := json.Marshal(payload)
	return body
}

func TestWebhookProcessesInline(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec, envelope := f.post(t, validBody("evt-1"), true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.OK)
	assert.Equal(t, 1, f.mailer.sent)
	require.Len(t, f.events.Events, 1)
	for _, event := range f.events.Events {
		assert.Equal(t, model.WebhookStatusProcessed, event.Status)
		require.NotNil(t, event.EventID)
		assert.Equal(t, "evt-1", *event.EventID)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t, nil)

	body := validBody("evt-1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/graphy", bytes.NewReader(body))
	req.Header.Set("X-Graphy-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope handler.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_SIGNATURE", envelope.Error.Code)
	assert.Empty(t, f.events.Events)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec, envelope := f.post(t, []byte(`{"email":"ada@acme.example"}`), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_PAYLOAD", envelope.Error.Code)
}

func TestWebhookDuplicateProcessedEvent(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec, _ := f.post(t, validBody("evt-1"), true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, envelope := f.post(t, validBody("evt-1"), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.OK)
	assert.Len(t, f.events.Events, 1, "duplicate must not mint a second event")
	assert.Equal(t, 1, f.mailer.sent, "duplicate must not redeliver")
}

func TestWebhookSoftKeyDedupWithoutEventID(t *testing.T) {
	broker := &stubBroker{}
	f := newWebhookFixture(t, broker)

	rec, _ := f.post(t, validBody(""), true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = f.post(t, validBody(""), true)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Len(t, f.events.Events, 1, "pending event for same course and email is reused")
	assert.Len(t, broker.published, 2, "each receipt re-dispatches the pending event")
}

func TestWebhookPublishesToBroker(t *testing.T) {
	broker := &stubBroker{}
	f := newWebhookFixture(t, broker)

	rec, envelope := f.post(t, validBody("evt-1"), true)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, envelope.OK)
	assert.Equal(t, 0, f.mailer.sent, "broker path must not process inline")
	require.Len(t, broker.published, 1)
	for _, event := range f.events.Events {
		assert.Equal(t, event.ID.String(), broker.published[0].WebhookEventID)
		assert.Equal(t, model.WebhookStatusReceived, event.Status)
	}
}

func TestWebhookEnqueueFailureMarksEventFailed(t *testing.T) {
	broker := &stubBroker{err: errors.New("redis connection refused")}
	f := newWebhookFixture(t, broker)

	rec, envelope := f.post(t, validBody("evt-1"), true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ENQUEUE_ERROR", envelope.Error.Code)

	require.Len(t, f.events.Events, 1)
	for _, event := range f.events.Events {
		assert.Equal(t, model.WebhookStatusFailed, event.Status)
		assert.Equal(t, 1, event.Attempts)
		require.NotNil(t, event.ErrorMessage)
		assert.Contains(t, *event.ErrorMessage, "enqueue failed")
	}
}

func TestWebhookRedeliveryAfterFailureReprocesses(t *testing.T) {
	f := newWebhookFixture(t, nil)

	eventID := "evt-1"
	event := &model.WebhookEvent{
		Source:       "graphy",
		EventID:      &eventID,
		CourseID:     "C1",
		LearnerEmail: "ada@acme.example",
		Payload:      validBody(eventID),
		Status:       model.WebhookStatusReceived,
	}
	ctx := context.Background()
	require.NoError(t, f.events.Create(ctx, event))
	require.NoError(t, f.events.MarkFailed(ctx, event.ID, "smtp connection reset"))

	rec, envelope := f.post(t, validBody(eventID), true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.OK)
	assert.Equal(t, 1, f.mailer.sent)
	require.Len(t, f.events.Events, 1, "redelivery must reuse the failed event")
	assert.Equal(t, model.WebhookStatusProcessed, f.events.Events[event.ID].Status)
}

func TestWebhookUnsignedAcceptedWhenHeaderAbsent(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec, envelope := f.post(t, validBody("evt-1"), false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.OK)
}
