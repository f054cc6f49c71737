package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/outbox/payloads"
	"github.com/clubemecanico/courses-backend/pkg/pagination"
)

const (
	ExpiryReasonPaymentWindow = "payment_window"
	ExpiryReasonOrphan        = "orphan"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes order reads and the pix/boleto expiry rules.
type Service interface {
	Get(ctx context.Context, userID, orderID int64) (*OrderDTO, error)
	List(ctx context.Context, userID int64, params pagination.Params) (*OrderList, error)
	PaymentStatus(ctx context.Context, userID, orderID int64) (*PaymentStatusDTO, error)
	ExpireOverdue(ctx context.Context, limit int) (ExpirySummary, error)
	ExpireOrphans(ctx context.Context, cutoff time.Time, limit int) (ExpirySummary, error)
}

// ExpirySummary reports what a sweep did.
type ExpirySummary struct {
	Scanned int
	Expired int
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) Get(ctx context.Context, userID, orderID int64) (*OrderDTO, error) {
	order, err := s.loadForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return ToDTO(order), nil
}

func (s *service) List(ctx context.Context, userID int64, params pagination.Params) (*OrderList, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

// PaymentStatus reports the order's payment state, expiring an overdue pix/boleto charge on read.
func (s *service) PaymentStatus(ctx context.Context, userID, orderID int64) (*PaymentStatusDTO, error) {
	order, err := s.loadForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	if order.Status == enums.OrderStatusPending && order.Payment.IsExpired(s.now().UTC()) {
		if _, err := s.expire(ctx, order, ExpiryReasonPaymentWindow); err != nil {
			return nil, err
		}
		order, err = s.loadForUser(ctx, userID, orderID)
		if err != nil {
			return nil, err
		}
	}

	p := order.Payment
	return &PaymentStatusDTO{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: p.Status,
		Method:        p.Method,
		CheckoutURL:   order.CheckoutURL,
		ExpiresAt:     p.ExpiresAt,
		PaidAt:        p.PaidAt,
	}, nil
}

// ExpireOverdue expires every pending pix/boleto payment whose window has passed.
func (s *service) ExpireOverdue(ctx context.Context, limit int) (ExpirySummary, error) {
	payments, err := s.repo.ListOverduePayments(ctx, s.now().UTC(), limit)
	if err != nil {
		return ExpirySummary{}, err
	}
	summary := ExpirySummary{Scanned: len(payments)}
	var errs error
	for _, payment := range payments {
		order, err := s.repo.FindByID(ctx, payment.OrderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load order %d: %w", payment.OrderID, err))
			continue
		}
		expired, err := s.expire(ctx, order, ExpiryReasonPaymentWindow)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %d: %w", order.ID, err))
			continue
		}
		if expired {
			summary.Expired++
		}
	}
	return summary, errs
}

// ExpireOrphans expires pending orders that never received a checkout URL before cutoff.
func (s *service) ExpireOrphans(ctx context.Context, cutoff time.Time, limit int) (ExpirySummary, error) {
	rows, err := s.repo.ListOrphanOrders(ctx, cutoff, limit)
	if err != nil {
		return ExpirySummary{}, err
	}
	summary := ExpirySummary{Scanned: len(rows)}
	var errs error
	for i := range rows {
		expired, err := s.expire(ctx, &rows[i], ExpiryReasonOrphan)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %d: %w", rows[i].ID, err))
			continue
		}
		if expired {
			summary.Expired++
		}
	}
	return summary, errs
}

func (s *service) expire(ctx context.Context, order *models.Order, reason string) (bool, error) {
	now := s.now().UTC()
	ctx = s.logg.WithOrderID(ctx, order.ID)

	var expired bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).ExpirePending(ctx, order.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		expired = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Source: "orders"},
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				ExpiredAt:   now,
				Reason:      reason,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire order")
	}
	if expired {
		s.logg.Info(s.logg.WithField(ctx, "reason", reason), "order expired")
	}
	return expired, nil
}

func (s *service) loadForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if orderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id must be positive")
	}
	order, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}
