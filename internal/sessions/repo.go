package sessions

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Repository reads class sessions and performs the atomic seat decrement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id int64) (*models.ClassSession, error)
	DecrementSeat(ctx context.Context, id int64, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a class session repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id int64) (*models.ClassSession, error) {
	var session models.ClassSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// DecrementSeat takes one seat in a single statement and flips the session to
// lotada when the last seat goes. It returns false when no seat was left.
func (r *repository) DecrementSeat(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
UPDATE class_sessions
SET available_seats = available_seats - 1,
    status = CASE WHEN available_seats - 1 = 0 THEN ? ELSE status END,
    updated_at = ?
WHERE id = ? AND available_seats > 0`,
		enums.ClassSessionStatusFull, now.UTC(), id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
