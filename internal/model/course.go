package model

import (
	"time"

	"github.com/google/uuid"
)

// Course is reference data: the external course id and the certificate
// template authored by the course owner. Read-only from the pipeline.
type Course struct {
	ID                      uuid.UUID `db:"id" json:"id"`
	CourseID                string    `db:"course_id" json:"course_id"`
	Name                    string    `db:"name" json:"name"`
	CertificateTemplateHTML string    `db:"certificate_template_html" json:"certificate_template_html"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}
