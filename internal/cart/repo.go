package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
)

// Line is a cart entry joined with the course it points at.
type Line struct {
	EntryID        int64           `gorm:"column:entry_id"`
	CourseID       int64           `gorm:"column:course_id"`
	ClassSessionID *int64          `gorm:"column:class_session_id"`
	CourseName     string          `gorm:"column:course_name"`
	Price          decimal.Decimal `gorm:"column:price"`
	Active         bool            `gorm:"column:active"`
	AddedAt        time.Time       `gorm:"column:added_at"`
}

// Repository persists cart entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListWithCourses(ctx context.Context, userID int64) ([]Line, error)
	FindCourse(ctx context.Context, courseID int64) (*models.Course, error)
	Add(ctx context.Context, entry *models.CartEntry) error
	Remove(ctx context.Context, userID, entryID int64) (bool, error)
	DeleteEntries(ctx context.Context, userID int64, entryIDs []int64) (int64, error)
	Clear(ctx context.Context, userID int64) (int64, error)
}

// ErrDuplicateEntry is returned by Add when the (user, course, session) entry already exists.
var ErrDuplicateEntry = errors.New("cart entry already exists")

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListWithCourses(ctx context.Context, userID int64) ([]Line, error) {
	var lines []Line
	err := r.db.WithContext(ctx).
		Table("cart_entries AS ce").
		Select(`ce.id AS entry_id, ce.course_id, ce.class_session_id, c.name AS course_name,
			c.price, c.active, ce.added_at`).
		Joins("JOIN courses c ON c.id = ce.course_id").
		Where("ce.user_id = ?", userID).
		Order("ce.added_at ASC, ce.id ASC").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) FindCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where("id = ?", courseID).First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *repository) Add(ctx context.Context, entry *models.CartEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (r *repository) Remove(ctx context.Context, userID, entryID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&models.CartEntry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteEntries removes the given entries of userID. Entries added after they were read survive.
func (r *repository) DeleteEntries(ctx context.Context, userID int64, entryIDs []int64) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, entryIDs).
		Delete(&models.CartEntry{})
	return res.RowsAffected, res.Error
}

func (r *repository) Clear(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartEntry{})
	return res.RowsAffected, res.Error
}
