package model

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const (
	EnrollmentStatusPending    EnrollmentStatus = "pending"
	EnrollmentStatusEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentStatusInProgress EnrollmentStatus = "in_progress"
	EnrollmentStatusCompleted  EnrollmentStatus = "completed"
)

type CertificateSendStatus string

const (
	SendStatusPending CertificateSendStatus = "pending"
	SendStatusSent    CertificateSendStatus = "sent"
	SendStatusFailed  CertificateSendStatus = "failed"
)

// Learner is one enrollment of one person in one course, unique per
// (course_id, email).
type Learner struct {
	ID                    uuid.UUID             `db:"id" json:"id"`
	Name                  string                `db:"name" json:"name"`
	Email                 string                `db:"email" json:"email"`
	OrganizationWebsite   string                `db:"organization_website" json:"organization_website"`
	CourseID              string                `db:"course_id" json:"course_id"`
	EnrollmentStatus      EnrollmentStatus      `db:"enrollment_status" json:"enrollment_status"`
	CompletionDate        *time.Time            `db:"completion_date" json:"completion_date,omitempty"`
	CompletionPercentage  float64               `db:"completion_percentage" json:"completion_percentage"`
	CompletionData        *string               `db:"completion_data" json:"completion_data,omitempty"`
	CertificateFileID     *string               `db:"certificate_file_id" json:"certificate_file_id,omitempty"`
	CertificateSendStatus CertificateSendStatus `db:"certificate_send_status" json:"certificate_send_status"`
	SendFailureReason     *string               `db:"send_failure_reason" json:"send_failure_reason,omitempty"`
	LastResendAttempt     *time.Time            `db:"last_resend_attempt" json:"last_resend_attempt,omitempty"`
	EnrollmentError       *string               `db:"enrollment_error" json:"enrollment_error,omitempty"`
	CreatedAt             time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `db:"updated_at" json:"updated_at"`
}

// Completed reports whether the learner has a recorded completion.
func (l *Learner) Completed() bool {
	return l.CompletionDate != nil
}

// LearnerProgress carries a poller progress update. Completion fields are
// only applied when Completed is true; progress-only updates never touch
// completion_date.
type LearnerProgress struct {
	Percentage     float64
	Completed      bool
	CompletionData string
}
