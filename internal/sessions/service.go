package sessions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
)

// Availability is the public view of a session's seat state.
type Availability struct {
	SessionID        int64                    `json:"sessionId"`
	CourseID         int64                    `json:"courseId"`
	TotalSeats       int                      `json:"totalSeats"`
	AvailableSeats   int                      `json:"availableSeats"`
	Status           enums.ClassSessionStatus `json:"status"`
	HasAvailableSeat bool                     `json:"hasAvailableSeat"`
}

// Service answers seat questions for the cart and the public availability endpoint.
type Service interface {
	HasAvailableSeat(ctx context.Context, sessionID int64) (bool, error)
	Availability(ctx context.Context, sessionID int64) (*Availability, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("class session repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) HasAvailableSeat(ctx context.Context, sessionID int64) (bool, error) {
	availability, err := s.Availability(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return availability.HasAvailableSeat, nil
}

func (s *service) Availability(ctx context.Context, sessionID int64) (*Availability, error) {
	if sessionID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id must be positive")
	}
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "class session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load class session")
	}
	return &Availability{
		SessionID:        session.ID,
		CourseID:         session.CourseID,
		TotalSeats:       session.TotalSeats,
		AvailableSeats:   session.AvailableSeats,
		Status:           session.Status,
		HasAvailableSeat: session.HasAvailableSeat(),
	}, nil
}
