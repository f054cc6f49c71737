package cart

import (
	"github.com/clubemecanico/courses-backend/internal/cart"
)

type addEntryRequest struct {
	CourseID       int64  `json:"courseId" validate:"required,min=1"`
	ClassSessionID *int64 `json:"classSessionId" validate:"omitempty,min=1"`
}

func (p addEntryRequest) toInput(userID int64) cart.AddEntryInput {
	return cart.AddEntryInput{
		UserID:         userID,
		CourseID:       p.CourseID,
		ClassSessionID: p.ClassSessionID,
	}
}
