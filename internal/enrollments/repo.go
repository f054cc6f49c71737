package enrollments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// ActivateResult reports what Activate did to the enrollment row.
type ActivateResult struct {
	Enrollment  *models.Enrollment
	Created     bool
	Reactivated bool
}

// SeatNeeded reports whether the caller must take a seat in the session for this activation.
func (r ActivateResult) SeatNeeded() bool {
	if r.Enrollment == nil || r.Enrollment.ClassSessionID == nil {
		return false
	}
	return r.Created || r.Reactivated
}

// Repository persists enrollments. Writes are insert-if-absent.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, userID, courseID int64, sessionID *int64) (*models.Enrollment, error)
	Activate(ctx context.Context, userID, courseID int64, sessionID *int64, now time.Time) (ActivateResult, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, userID, courseID int64, sessionID *int64) (*models.Enrollment, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID)
	if sessionID == nil {
		q = q.Where("class_session_id IS NULL")
	} else {
		q = q.Where("class_session_id = ?", *sessionID)
	}
	var enrollment models.Enrollment
	if err := q.First(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Activate makes sure an active enrollment exists for (user, course, session).
// An active row is left untouched. Any other row (cancelled, locked or concluded)
// goes back to ativo with a fresh enrollment time and needs a seat again.
func (r *repository) Activate(ctx context.Context, userID, courseID int64, sessionID *int64, now time.Time) (ActivateResult, error) {
	existing, err := r.Find(ctx, userID, courseID, sessionID)
	switch {
	case err == nil:
		return r.reactivate(ctx, existing, now)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return ActivateResult{}, err
	}

	enrollment := &models.Enrollment{
		UserID:         userID,
		CourseID:       courseID,
		ClassSessionID: sessionID,
		Status:         enums.EnrollmentStatusActive,
		Progress:       0,
		EnrolledAt:     now.UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(enrollment)
	if res.Error != nil {
		return ActivateResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		// a concurrent writer inserted the same row first
		existing, err := r.Find(ctx, userID, courseID, sessionID)
		if err != nil {
			return ActivateResult{}, err
		}
		return ActivateResult{Enrollment: existing}, nil
	}
	return ActivateResult{Enrollment: enrollment, Created: true}, nil
}

func (r *repository) reactivate(ctx context.Context, enrollment *models.Enrollment, now time.Time) (ActivateResult, error) {
	if enrollment.Status == enums.EnrollmentStatusActive {
		return ActivateResult{Enrollment: enrollment}, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND status <> ?", enrollment.ID, enums.EnrollmentStatusActive).
		Updates(map[string]any{
			"status":       enums.EnrollmentStatusActive,
			"enrolled_at":  now.UTC(),
			"completed_at": nil,
			"updated_at":   now.UTC(),
		})
	if res.Error != nil {
		return ActivateResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		// reactivated concurrently
		enrollment.Status = enums.EnrollmentStatusActive
		return ActivateResult{Enrollment: enrollment}, nil
	}
	enrollment.Status = enums.EnrollmentStatusActive
	enrollment.EnrolledAt = now.UTC()
	enrollment.CompletedAt = nil
	return ActivateResult{Enrollment: enrollment, Reactivated: true}, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	var rows []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("enrolled_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}
