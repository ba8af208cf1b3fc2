package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decet2025-sketch/cert-api/internal/email"
	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository/repositorytest"
	"github.com/decet2025-sketch/cert-api/internal/service/certificate"
	"github.com/decet2025-sketch/cert-api/internal/service/graphy"
	"github.com/decet2025-sketch/cert-api/internal/service/renderer"
	"github.com/decet2025-sketch/cert-api/internal/storage"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

type noopMailer struct {
	sent int
}

func (m *noopMailer) SendCertificate(ctx context.Context, req email.CertificateRequest) (string, error) {
	m.sent++
	return "<poller-test>", nil
}

// lmsServer serves the v2 learners endpoint from a fixed map of email to
// learner data.
func lmsServer(t *testing.T, learners map[string]graphy.LearnerData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/public/v2/learners") {
			http.NotFound(w, r)
			return
		}
		var query struct {
			Email string `json:"email"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("query")), &query))

		data, ok := learners[query.Email]
		payload := map[string]interface{}{"data": []graphy.LearnerData{}}
		if ok {
			payload["data"] = []graphy.LearnerData{data}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
}

type pollerFixture struct {
	svc      *Service
	events   *repositorytest.WebhookEventStore
	learners *repositorytest.LearnerStore
	mailer   *noopMailer
}

func newPollerFixture(t *testing.T, lmsURL string) *pollerFixture {
	t.Helper()

	log := logger.NewLogger(nil)
	m := metrics.NewWith(prometheus.NewRegistry(), "test")

	events := repositorytest.NewWebhookEventStore()
	learners := repositorytest.NewLearnerStore()
	courses := repositorytest.NewCourseStore(&model.Course{
		CourseID:                "C1",
		Name:                    "Go Fundamentals",
		CertificateTemplateHTML: "<p>{learnerName}</p>",
	})
	orgs := repositorytest.NewOrganizationStore(&model.Organization{
		Website:  "acme.example",
		SOPEmail: "sop@acme.example",
	})

	store, err := storage.NewFilesystemStore(t.TempDir(), log)
	require.NoError(t, err)

	mailer := &noopMailer{}
	worker := certificate.NewWorker(certificate.WorkerParams{
		Events:    events,
		Learners:  learners,
		Courses:   courses,
		Orgs:      orgs,
		EmailLogs: repositorytest.NewEmailLogStore(),
		Renderer:  renderer.NewService(renderer.Config{LocalPDF: true}, log, m),
		Mailer:    mailer,
		Store:     store,
		Logger:    log,
		Metrics:   m,
	})

	lms := graphy.NewClient(graphy.Config{
		BaseURL:    lmsURL,
		MerchantID: "mid",
		APIKey:     "key",
		Timeout:    5 * time.Second,
	}, log)

	return &pollerFixture{
		svc:      NewService(learners, events, lms, worker, log, m),
		events:   events,
		learners: learners,
		mailer:   mailer,
	}
}

func addEnrolledLearner(f *pollerFixture, email string) *model.Learner {
	return f.learners.Add(&model.Learner{
		Name:                "Ada Lovelace",
		Email:               email,
		OrganizationWebsite: "acme.example",
		CourseID:            "C1",
		EnrollmentStatus:    model.EnrollmentStatusEnrolled,
	})
}

func TestProcessBatchDetectsCompletion(t *testing.T) {
	srv := lmsServer(t, map[string]graphy.LearnerData{
		"ada@acme.example": {
			Email: "ada@acme.example",
			Courses: []graphy.CourseProgress{{
				ID:       "C1",
				Progress: 100,
				Items: []graphy.CourseItem{
					{Name: "intro", Completed: true},
					{Name: "exam", Completed: true},
				},
			}},
		},
	})
	defer srv.Close()

	f := newPollerFixture(t, srv.URL)
	learner := addEnrolledLearner(f, "ada@acme.example")

	result, err := f.svc.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Errors)

	stored := f.learners.Snapshot(learner.ID)
	assert.Equal(t, model.EnrollmentStatusCompleted, stored.EnrollmentStatus)
	require.NotNil(t, stored.CompletionDate)
	assert.Equal(t, model.SendStatusSent, stored.CertificateSendStatus, "synthesized event runs the full pipeline")

	events, _ := f.events.List(context.Background(), model.WebhookListFilter{})
	require.Len(t, events, 1)
	require.NotNil(t, events[0].EventID)
	assert.True(t, strings.HasPrefix(*events[0].EventID, "completion_ada@acme.example_C1_"))
	assert.Equal(t, model.WebhookStatusProcessed, events[0].Status)
	assert.Equal(t, 1, f.mailer.sent)
}

func TestProcessBatchFullProgressWithIncompleteItem(t *testing.T) {
	srv := lmsServer(t, map[string]graphy.LearnerData{
		"ada@acme.example": {
			Email: "ada@acme.example",
			Courses: []graphy.CourseProgress{{
				ID:       "C1",
				Progress: 100,
				Items: []graphy.CourseItem{
					{Name: "intro", Completed: true},
					{Name: "exam", Completed: false},
				},
			}},
		},
	})
	defer srv.Close()

	f := newPollerFixture(t, srv.URL)
	learner := addEnrolledLearner(f, "ada@acme.example")

	result, err := f.svc.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed, "an incomplete item blocks completion regardless of progress")

	stored := f.learners.Snapshot(learner.ID)
	assert.Nil(t, stored.CompletionDate)
	assert.Equal(t, model.EnrollmentStatusInProgress, stored.EnrollmentStatus)
	assert.Equal(t, float64(100), stored.CompletionPercentage)

	events, _ := f.events.List(context.Background(), model.WebhookListFilter{})
	assert.Empty(t, events)
	assert.Equal(t, 0, f.mailer.sent)
}

func TestProcessBatchRecordsPartialProgress(t *testing.T) {
	srv := lmsServer(t, map[string]graphy.LearnerData{
		"ada@acme.example": {
			Email: "ada@acme.example",
			Courses: []graphy.CourseProgress{{
				ID:       "C1",
				Progress: 40,
				Items:    []graphy.CourseItem{{Name: "intro", Completed: true}},
			}},
		},
	})
	defer srv.Close()

	f := newPollerFixture(t, srv.URL)
	learner := addEnrolledLearner(f, "ada@acme.example")

	result, err := f.svc.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed)

	stored := f.learners.Snapshot(learner.ID)
	assert.Equal(t, float64(40), stored.CompletionPercentage)
	assert.Nil(t, stored.CompletionDate, "progress-only updates never touch completion_date")
}

func TestProcessBatchCountsErrorsWithoutAborting(t *testing.T) {
	srv := lmsServer(t, map[string]graphy.LearnerData{
		"known@acme.example": {
			Email: "known@acme.example",
			Courses: []graphy.CourseProgress{{
				ID:       "C1",
				Progress: 10,
			}},
		},
	})
	defer srv.Close()

	f := newPollerFixture(t, srv.URL)
	addEnrolledLearner(f, "unknown@acme.example")
	addEnrolledLearner(f, "known@acme.example")

	result, err := f.svc.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Errors, "unknown learner is counted, not fatal")
	assert.Equal(t, 0, result.Completed)
}
