package model

import (
	"time"

	"github.com/google/uuid"
)

type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// EmailLog is an append-only audit record of one delivery attempt.
// Rows are created once and never mutated.
type EmailLog struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	ToEmail          string      `db:"to_email" json:"to_email"`
	LearnerEmail     string      `db:"learner_email" json:"learner_email"`
	CourseID         string      `db:"course_id" json:"course_id"`
	Subject          string      `db:"subject" json:"subject"`
	AttachmentFileID *string     `db:"attachment_file_id" json:"attachment_file_id,omitempty"`
	Status           EmailStatus `db:"status" json:"status"`
	Response         *string     `db:"response" json:"response,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}
