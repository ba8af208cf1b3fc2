package graphy

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"course_id":"C1","email":"ada@acme.example"}`)
	secret := "webhook-secret"
	valid := sign(payload, secret)

	assert.True(t, VerifySignature(payload, valid, secret))
	assert.True(t, VerifySignature(payload, "sha256="+valid, secret), "prefixed signatures are accepted")
	assert.False(t, VerifySignature(payload, valid, "other-secret"))
	assert.False(t, VerifySignature([]byte("tampered"), valid, secret))
	assert.False(t, VerifySignature(payload, "", secret))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:    baseURL,
		MerchantID: "mid-1",
		APIKey:     "key-1",
		Timeout:    5 * time.Second,
	}, logger.NewLogger(nil))
}

func TestGetLearnerData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/v2/learners", r.URL.Path)
		assert.Equal(t, "mid-1", r.URL.Query().Get("mid"))
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))
		assert.Equal(t, "true", r.URL.Query().Get("courseInfo"))

		var query struct {
			Email string `json:"email"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("query")), &query))
		assert.Equal(t, "ada@acme.example", query.Email)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{
			"email":"ada@acme.example",
			"name":"Ada Lovelace",
			"courses":[{
				"id":"C1",
				"Title":"Go Fundamentals",
				"progress":100,
				"course items":[{"name":"intro","completed":true}]
			}]
		}]}`))
	}))
	defer srv.Close()

	data, err := newTestClient(t, srv.URL).GetLearnerData(context.Background(), "ada@acme.example")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "Ada Lovelace", data.Name)

	course := data.Course("C1")
	require.NotNil(t, course)
	assert.Equal(t, "Go Fundamentals", course.Title)
	assert.True(t, course.Completed())
	assert.Nil(t, data.Course("C2"))
}

func TestGetLearnerDataUnknownLearner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	data, err := newTestClient(t, srv.URL).GetLearnerData(context.Background(), "nobody@acme.example")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCourseProgressCompleted(t *testing.T) {
	tests := []struct {
		name     string
		course   CourseProgress
		expected bool
	}{
		{"full progress, all items done", CourseProgress{Progress: 100, Items: []CourseItem{{Completed: true}, {Completed: true}}}, true},
		{"full progress, one item open", CourseProgress{Progress: 100, Items: []CourseItem{{Completed: true}, {Completed: false}}}, false},
		{"partial progress", CourseProgress{Progress: 99.9, Items: []CourseItem{{Completed: true}}}, false},
		{"full progress, no items", CourseProgress{Progress: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.course.Completed())
		})
	}
}

func TestEnrollLearner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/v1/assign", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ada@acme.example", r.PostForm.Get("email"))
		assert.Equal(t, "C1", r.PostForm.Get("productId"))
		assert.Equal(t, "IN", r.PostForm.Get("countryCode"))
		assert.Equal(t, "mid-1", r.PostForm.Get("mid"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).EnrollLearner(context.Background(), EnrollmentRequest{
		Email:    "ada@acme.example",
		CourseID: "C1",
	})
	require.NoError(t, err)
}
