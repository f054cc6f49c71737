package models

import (
	"time"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Enrollment grants a user access to a course, optionally scoped to a session.
type Enrollment struct {
	ID             int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         int64                  `gorm:"column:user_id;not null"`
	CourseID       int64                  `gorm:"column:course_id;not null"`
	ClassSessionID *int64                 `gorm:"column:class_session_id"`
	Status         enums.EnrollmentStatus `gorm:"column:status;not null;default:'ativo'"`
	Progress       int                    `gorm:"column:progress;not null;default:0"`
	EnrolledAt     time.Time              `gorm:"column:enrolled_at;not null"`
	CompletedAt    *time.Time             `gorm:"column:completed_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
