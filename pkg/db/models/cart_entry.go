package models

import "time"

// CartEntry is a pending course (and optional session) selection of a user.
type CartEntry struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         int64     `gorm:"column:user_id;not null"`
	CourseID       int64     `gorm:"column:course_id;not null"`
	ClassSessionID *int64    `gorm:"column:class_session_id"`
	AddedAt        time.Time `gorm:"column:added_at;autoCreateTime"`
}
