package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/decet2025-sketch/cert-api/internal/model"
)

// Course templates and organization records change rarely but are read on
// every certificate generation, so both get a short read-through cache.

type cachedCourseRepository struct {
	inner CourseRepository
	cache *gocache.Cache
}

func NewCachedCourseRepository(inner CourseRepository, ttl time.Duration) CourseRepository {
	return &cachedCourseRepository{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (r *cachedCourseRepository) GetByCourseID(ctx context.Context, courseID string) (*model.Course, error) {
	if cached, ok := r.cache.Get(courseID); ok {
		return cached.(*model.Course), nil
	}
	course, err := r.inner.GetByCourseID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course != nil {
		r.cache.SetDefault(courseID, course)
	}
	return course, nil
}

type cachedOrganizationRepository struct {
	inner OrganizationRepository
	cache *gocache.Cache
}

func NewCachedOrganizationRepository(inner OrganizationRepository, ttl time.Duration) OrganizationRepository {
	return &cachedOrganizationRepository{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (r *cachedOrganizationRepository) GetByWebsite(ctx context.Context, website string) (*model.Organization, error) {
	if cached, ok := r.cache.Get(website); ok {
		return cached.(*model.Organization), nil
	}
	org, err := r.inner.GetByWebsite(ctx, website)
	if err != nil {
		return nil, err
	}
	if org != nil {
		r.cache.SetDefault(website, org)
	}
	return org, nil
}
