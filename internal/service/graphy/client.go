package graphy

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// CourseItem is one sub-item of a course in the upstream LMS progress data.
type CourseItem struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// CourseProgress is the per-course slice of a learner record. The upstream
// API really does use a space in the "course items" key.
type CourseProgress struct {
	ID        string       `json:"id"`
	Title     string       `json:"Title"`
	Progress  float64      `json:"progress"`
	TotalTime float64      `json:"totalTime"`
	Items     []CourseItem `json:"course items"`
}

// LearnerData is the upstream learner record with course info attached.
type LearnerData struct {
	Email   string           `json:"email"`
	Name    string           `json:"name"`
	Courses []CourseProgress `json:"courses"`
}

// Course returns the progress entry for courseID, or nil when the learner
// has no enrollment for it upstream.
func (d *LearnerData) Course(courseID string) *CourseProgress {
	for i := range d.Courses {
		if d.Courses[i].ID == courseID {
			return &d.Courses[i]
		}
	}
	return nil
}

// Completed applies the completion rule: full progress and every course
// item individually marked complete. Partial progress never qualifies.
func (c *CourseProgress) Completed() bool {
	if c.Progress < 100 {
		return false
	}
	for _, item := range c.Items {
		if !item.Completed {
			return false
		}
	}
	return true
}

type EnrollmentRequest struct {
	Email       string
	CourseID    string
	CountryCode string
	Phone       string
}

type Config struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	Timeout    time.Duration
}

type Client struct {
	config Config
	client *resty.Client
	logger *logger.Logger
}

func NewClient(config Config, log *logger.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("User-Agent", "cert-api/1.0").
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		})

	return &Client{config: config, client: client, logger: log}
}

type learnersEnvelope struct {
	Data []LearnerData `json:"data"`
}

// GetLearnerData fetches one learner with per-course progress attached.
// A learner unknown to the LMS returns (nil, nil).
func (c *Client) GetLearnerData(ctx context.Context, email string) (*LearnerData, error) {
	query, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to encode learner query: %w", err)
	}

	var envelope learnersEnvelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"mid":        c.config.MerchantID,
			"key":        c.config.APIKey,
			"query":      string(query),
			"courseInfo": "true",
			"limit":      "1",
		}).
		SetResult(&envelope).
		Get("/public/v2/learners")
	if err != nil {
		return nil, fmt.Errorf("learner data request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("learner data request returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(envelope.Data) == 0 {
		return nil, nil
	}
	return &envelope.Data[0], nil
}

// EnrollLearner assigns a course to a learner. The assign endpoint is
// form-encoded, unlike the rest of the API.
func (c *Client) EnrollLearner(ctx context.Context, req EnrollmentRequest) error {
	countryCode := req.CountryCode
	if countryCode == "" {
		countryCode = "IN"
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"mid":         c.config.MerchantID,
			"key":         c.config.APIKey,
			"email":       req.Email,
			"productId":   req.CourseID,
			"countryCode": countryCode,
			"phone":       req.Phone,
		}).
		Post("/public/v1/assign")
	if err != nil {
		return fmt.Errorf("enrollment request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("enrollment returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// HealthCheck probes API connectivity with a minimal products listing.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"mid":   c.config.MerchantID,
			"key":   c.config.APIKey,
			"limit": "1",
		}).
		Get("/public/v1/products")
	if err != nil {
		return fmt.Errorf("LMS health check failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("LMS health check returned status %d", resp.StatusCode())
	}
	return nil
}

// VerifySignature checks an HMAC-SHA256 webhook signature over the raw
// request body. The upstream sends hex with an optional "sha256=" prefix.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
