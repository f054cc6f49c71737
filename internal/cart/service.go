package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

// AddEntryInput selects a course and, for in-person courses, a class session.
type AddEntryInput struct {
	UserID         int64
	CourseID       int64
	ClassSessionID *int64
}

// EntryDTO is the public shape of a cart line.
type EntryDTO struct {
	ID             int64           `json:"id"`
	CourseID       int64           `json:"courseId"`
	ClassSessionID *int64          `json:"classSessionId,omitempty"`
	CourseName     string          `json:"courseName"`
	Price          decimal.Decimal `json:"price"`
	AddedAt        time.Time       `json:"addedAt"`
}

// View is the cart of one user with its running subtotal.
type View struct {
	Entries  []EntryDTO      `json:"entries"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Service manages the user's cart.
type Service interface {
	List(ctx context.Context, userID int64) (*View, error)
	AddEntry(ctx context.Context, input AddEntryInput) (*EntryDTO, error)
	RemoveEntry(ctx context.Context, userID, entryID int64) error
	GetCartEntries(ctx context.Context, userID int64) ([]Line, error)
	ClearCart(ctx context.Context, userID int64) error
}

type seatChecker interface {
	HasAvailableSeat(ctx context.Context, sessionID int64) (bool, error)
}

type sessionLoader interface {
	Get(ctx context.Context, id int64) (*models.ClassSession, error)
}

type ServiceParams struct {
	Repo     Repository
	Sessions sessionLoader
	Seats    seatChecker
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	sessions sessionLoader
	seats    seatChecker
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("class session loader required")
	}
	if params.Seats == nil {
		return nil, fmt.Errorf("seat checker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		sessions: params.Sessions,
		seats:    params.Seats,
		logg:     params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, userID int64) (*View, error) {
	lines, err := s.GetCartEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &View{Entries: make([]EntryDTO, 0, len(lines)), Subtotal: decimal.Zero}
	for _, line := range lines {
		view.Entries = append(view.Entries, EntryDTO{
			ID:             line.EntryID,
			CourseID:       line.CourseID,
			ClassSessionID: line.ClassSessionID,
			CourseName:     line.CourseName,
			Price:          line.Price,
			AddedAt:        line.AddedAt,
		})
		view.Subtotal = view.Subtotal.Add(line.Price)
	}
	return view, nil
}

func (s *service) GetCartEntries(ctx context.Context, userID int64) ([]Line, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	lines, err := s.repo.ListWithCourses(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return lines, nil
}

func (s *service) AddEntry(ctx context.Context, input AddEntryInput) (*EntryDTO, error) {
	if input.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if input.CourseID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course id must be positive")
	}

	course, err := s.repo.FindCourse(ctx, input.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load course")
	}
	if !course.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course is not available for sale")
	}
	if !course.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course has no price")
	}

	if input.ClassSessionID != nil {
		if err := s.checkSession(ctx, course.ID, *input.ClassSessionID); err != nil {
			return nil, err
		}
	}

	entry := &models.CartEntry{
		UserID:         input.UserID,
		CourseID:       course.ID,
		ClassSessionID: input.ClassSessionID,
		AddedAt:        time.Now().UTC(),
	}
	if err := s.repo.Add(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "course already in cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart entry")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": input.UserID, "course_id": course.ID})
	s.logg.Info(ctx, "cart entry added")

	return &EntryDTO{
		ID:             entry.ID,
		CourseID:       course.ID,
		ClassSessionID: entry.ClassSessionID,
		CourseName:     course.Name,
		Price:          course.Price,
		AddedAt:        entry.AddedAt,
	}, nil
}

func (s *service) checkSession(ctx context.Context, courseID, sessionID int64) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "class session not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load class session")
	}
	if session.CourseID != courseID {
		return pkgerrors.New(pkgerrors.CodeValidation, "class session does not belong to course")
	}
	ok, err := s.seats.HasAvailableSeat(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "class session has no available seats")
	}
	return nil
}

func (s *service) RemoveEntry(ctx context.Context, userID, entryID int64) error {
	if userID <= 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	removed, err := s.repo.Remove(ctx, userID, entryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart entry")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart entry not found")
	}
	return nil
}

func (s *service) ClearCart(ctx context.Context, userID int64) error {
	if _, err := s.repo.Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}
