package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a client organization. Website is the join key from
// learners; SOPEmail is the single delivery contact that receives issued
// certificates.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Website   string    `db:"website" json:"website"`
	Name      *string   `db:"name" json:"name,omitempty"`
	SOPEmail  string    `db:"sop_email" json:"sop_email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName prefers the organization name and falls back to the website.
func (o *Organization) DisplayName() string {
	if o.Name != nil && *o.Name != "" {
		return *o.Name
	}
	return o.Website
}
