package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/internal/repository"
)

type courseRepository struct {
	BaseRepository
}

func NewCourseRepository(base BaseRepository) repository.CourseRepository {
	return &courseRepository{base}
}

func (r *courseRepository) GetByCourseID(ctx context.Context, courseID string) (*model.Course, error) {
	query := `SELECT * FROM courses WHERE course_id = $1`
	var course model.Course
	if err := r.db.GetContext(ctx, &course, query, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}
