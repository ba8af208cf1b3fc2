package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
)

type organizationRepository struct {
	BaseRepository
}

func NewOrganizationRepository(base BaseRepository) repository.OrganizationRepository {
	return &organizationRepository{base}
}

func (r *organizationRepository) GetByWebsite(ctx context.Context, website string) (*model.Organization, error) {
	query := `SELECT * FROM organizations WHERE website = $1`
	var org model.Organization
	if err := r.db.GetContext(ctx, &org, query, website); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}
