package model

import "encoding/json"

// ActionType is the closed set of admin RPC actions. Adding an action is a
// compile-time decision: the handler switch is exhaustive and anything
// outside this set is rejected as INVALID_ACTION.
type ActionType string

const (
	ActionRetryWebhook        ActionType = "RETRY_WEBHOOK"
	ActionResendCertificate   ActionType = "RESEND_CERTIFICATE"
	ActionDownloadCertificate ActionType = "DOWNLOAD_CERTIFICATE"
	ActionListWebhooks        ActionType = "LIST_WEBHOOKS"
)

// ActionRequest is the internal RPC envelope: {action, payload}.
type ActionRequest struct {
	Action  ActionType      `json:"action" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type RetryWebhookPayload struct {
	WebhookEventID string `json:"webhook_event_id" binding:"required"`
}

// ResendCertificatePayload targets either one learner (learner_email +
// course_id) or every eligible learner of an organization.
type ResendCertificatePayload struct {
	LearnerEmail        string `json:"learner_email,omitempty"`
	CourseID            string `json:"course_id,omitempty"`
	OrganizationWebsite string `json:"organization_website,omitempty"`
}

type DownloadCertificatePayload struct {
	LearnerEmail string `json:"learner_email" binding:"required,email"`
	CourseID     string `json:"course_id" binding:"required"`
}

type ListWebhooksPayload struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ResendSummary aggregates per-learner outcomes of an organization-wide
// resend; one learner's failure never fails the batch.
type ResendSummary struct {
	TotalProcessed    int `json:"total_processed"`
	SuccessfulResends int `json:"successful_resends"`
	FailedResends     int `json:"failed_resends"`
}
