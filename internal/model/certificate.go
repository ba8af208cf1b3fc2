package model

// CertificateContext is the transient render-time value object built per
// render call from Learner/Course/Organization. It is never persisted.
type CertificateContext struct {
	LearnerName    string
	LearnerEmail   string
	CourseName     string
	Organization   string
	CompletionDate string // ISO 8601, UTC
	CustomFields   map[string]string
}
