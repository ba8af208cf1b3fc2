package model

import (
	"time"

	"github.com/google/uuid"
)

type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "received"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// WebhookEvent is one completion signal awaiting pipeline processing.
// Rows are never deleted; they are kept for audit and retry sweeps.
type WebhookEvent struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	Source         string        `db:"source" json:"source"`
	EventID        *string       `db:"event_id" json:"event_id,omitempty"`
	CourseID       string        `db:"course_id" json:"course_id"`
	LearnerEmail   string        `db:"learner_email" json:"learner_email"`
	Payload        []byte        `db:"payload" json:"payload,omitempty"`
	CompletionDate *time.Time    `db:"completion_date" json:"completion_date,omitempty"`
	Status         WebhookStatus `db:"status" json:"status"`
	Attempts       int           `db:"attempts" json:"attempts"`
	ErrorMessage   *string       `db:"error_message" json:"error_message,omitempty"`
	ReceivedAt     time.Time     `db:"received_at" json:"received_at"`
	ProcessedAt    *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// WebhookPayload is the inbound push payload from the learning platform.
// Legacy webhooks omit event_id; course_id+email then act as a softer
// dedup key.
type WebhookPayload struct {
	CourseID    string                 `json:"course_id" binding:"required"`
	Email       string                 `json:"email" binding:"required,email"`
	EventID     string                 `json:"event_id,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// WebhookListFilter bounds audit listings of webhook events.
type WebhookListFilter struct {
	Status *WebhookStatus
	Limit  int
	Offset int
}
