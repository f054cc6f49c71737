package models

import (
	"time"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// ClassSession is a scheduled offering ("turma") of a course with a seat cap.
type ClassSession struct {
	ID             int64                    `gorm:"column:id;primaryKey;autoIncrement"`
	CourseID       int64                    `gorm:"column:course_id;not null"`
	StartsAt       time.Time                `gorm:"column:starts_at;not null"`
	EndsAt         time.Time                `gorm:"column:ends_at;not null"`
	Schedule       string                   `gorm:"column:schedule;not null;default:''"`
	Instructor     string                   `gorm:"column:instructor;not null;default:''"`
	TotalSeats     int                      `gorm:"column:total_seats;not null"`
	AvailableSeats int                      `gorm:"column:available_seats;not null"`
	Status         enums.ClassSessionStatus `gorm:"column:status;not null;default:'aberta'"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// HasAvailableSeat reports whether the session can take one more student.
func (s ClassSession) HasAvailableSeat() bool {
	return s.AvailableSeats > 0 && s.Status == enums.ClassSessionStatusOpen
}
