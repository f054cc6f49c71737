package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/internal/enrollments"
	"github.com/clubemecanico/courses-backend/internal/gatewayevents"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/internal/sessions"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/mercadopago"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/outbox/payloads"
)

const (
	providerMercadoPago = "mercadopago"
	idempotencyConsumer = "mercadopago-webhook"
	eventSource         = "mercadopago"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway fetches the authoritative payment state.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
}

type notificationGuard interface {
	Claim(ctx context.Context, consumer, id string) (bool, error)
	Complete(ctx context.Context, consumer, id string) error
	Release(ctx context.Context, consumer, id string) error
}

// Service reconciles gateway notifications into order, payment and enrollment state.
type Service interface {
	HandleNotification(ctx context.Context, n Notification) (Result, error)
}

type ServiceParams struct {
	Tx          txRunner
	Orders      orders.Repository
	Enrollments enrollments.Repository
	Sessions    sessions.Repository
	Events      gatewayevents.Repository
	Outbox      outboxPublisher
	Gateway     Gateway
	Guard       notificationGuard
	StrictSeats bool
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	tx          txRunner
	orders      orders.Repository
	enrollments enrollments.Repository
	sessions    sessions.Repository
	events      gatewayevents.Repository
	outbox      outboxPublisher
	gateway     Gateway
	guard       notificationGuard
	strictSeats bool
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Enrollments == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("class sessions repository required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("gateway events repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:          params.Tx,
		orders:      params.Orders,
		enrollments: params.Enrollments,
		sessions:    params.Sessions,
		events:      params.Events,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		guard:       params.Guard,
		strictSeats: params.StrictSeats,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// HandleNotification records the notification, reconciles it and writes the outcome back to
// the event log. The returned error is informational: callers acknowledge the webhook anyway.
func (s *service) HandleNotification(ctx context.Context, n Notification) (Result, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"notification_id":   n.ID,
		"notification_type": n.Type,
		"resource_id":       n.ResourceID,
	})
	eventID := s.record(ctx, n)

	result, err := s.handle(ctx, n)
	if result.OrderID > 0 {
		ctx = s.logg.WithOrderID(ctx, result.OrderID)
	}

	switch {
	case err != nil && result.Outcome == OutcomeFailed:
		s.logg.Error(ctx, "gateway notification failed", err)
	case err != nil:
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "gateway notification rejected")
	default:
		s.logg.Info(s.logg.WithField(ctx, "outcome", result.Outcome), "gateway notification handled")
	}

	s.metrics.IncReconciliation(string(result.Outcome))
	s.finish(ctx, eventID, result, err)
	return result, err
}

func (s *service) handle(ctx context.Context, n Notification) (Result, error) {
	if !strings.EqualFold(strings.TrimSpace(n.Type), notificationTypePayment) {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	paymentID := strings.TrimSpace(n.ResourceID)
	if paymentID == "" {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	claimed := false
	if s.guard != nil && n.ID != "" {
		already, err := s.guard.Claim(ctx, idempotencyConsumer, n.ID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "notification guard unavailable; processing anyway")
		} else if already {
			return Result{Outcome: OutcomeDuplicate}, nil
		} else {
			claimed = true
		}
	}

	result, err := s.reconcile(ctx, paymentID)
	if !claimed {
		return result, err
	}
	if result.Outcome == OutcomeFailed {
		if relErr := s.guard.Release(ctx, idempotencyConsumer, n.ID); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "release notification guard failed")
		}
	} else if doneErr := s.guard.Complete(ctx, idempotencyConsumer, n.ID); doneErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", doneErr.Error()), "complete notification guard failed")
	}
	return result, err
}

func (s *service) reconcile(ctx context.Context, paymentID string) (Result, error) {
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, mercadopago.ErrNotFound) {
			return Result{Outcome: OutcomeIgnored}, nil
		}
		return Result{Outcome: OutcomeFailed}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch gateway payment")
	}

	orderID, err := strconv.ParseInt(strings.TrimSpace(payment.ExternalReference), 10, 64)
	if err != nil || orderID <= 0 {
		return Result{Outcome: OutcomeInvalidReference}, pkgerrors.Wrap(pkgerrors.CodeValidation,
			fmt.Errorf("%w: %q", ErrInvalidReference, payment.ExternalReference), "payment external reference is not an order id")
	}

	result, err := s.apply(ctx, orderID, payment)
	var exhausted *seatsExhaustedError
	if errors.As(err, &exhausted) {
		return s.holdForSeats(ctx, orderID, payment, exhausted)
	}
	if err != nil {
		return Result{Outcome: OutcomeFailed, OrderID: orderID}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply gateway payment")
	}
	return result, nil
}

// apply merges the gateway payment into the order inside one transaction holding the order row lock.
func (s *service) apply(ctx context.Context, orderID int64, gp *mercadopago.Payment) (Result, error) {
	result := Result{OrderID: orderID}
	now := s.now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)

		order, record, err := s.lockOrder(ctx, ordersRepo, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			result.Outcome = OutcomeOrderNotFound
			return nil
		}

		mapped := enums.MapGatewayStatus(gp.Status)
		result.From = order.Status
		result.Status = order.Status

		if order.Status == mapped {
			mergePayment(record, gp, now)
			record.Status = mapped
			result.Outcome = OutcomeUnchanged
			return ordersRepo.SavePayment(ctx, record)
		}
		if !order.Status.CanTransitionTo(mapped) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"order_status":   order.Status,
				"gateway_status": gp.Status,
			}), "stale gateway status ignored")
			result.Outcome = OutcomeStale
			return nil
		}

		mergePayment(record, gp, now)
		record.Status = mapped
		if mapped == enums.OrderStatusApproved && record.PaidAt == nil {
			paidAt := now
			if gp.DateApproved != nil {
				paidAt = gp.DateApproved.UTC()
			}
			record.PaidAt = &paidAt
		}
		if err := ordersRepo.SavePayment(ctx, record); err != nil {
			return err
		}
		if err := ordersRepo.SaveOrderStatus(ctx, order.ID, mapped); err != nil {
			return err
		}
		if err := s.emitStatusChanged(ctx, tx, order, mapped, now); err != nil {
			return err
		}

		if mapped == enums.OrderStatusApproved {
			items, err := ordersRepo.FindLineItems(ctx, order.ID)
			if err != nil {
				return err
			}
			if err := s.enroll(ctx, tx, order, items, now); err != nil {
				return err
			}
			if err := s.emitPaid(ctx, tx, order, record, items, now); err != nil {
				return err
			}
		}

		result.Outcome = OutcomeApplied
		result.Status = mapped
		return nil
	})
	return result, err
}

func (s *service) lockOrder(ctx context.Context, repo orders.Repository, orderID int64) (*models.Order, *models.Payment, error) {
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	record, err := repo.FindPayment(ctx, orderID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
		record = &models.Payment{
			OrderID: order.ID,
			Method:  enums.PaymentMethodMercadoPago,
			Status:  order.Status,
			Amount:  order.Total,
		}
	}
	return order, record, nil
}

type seatsExhaustedError struct {
	sessionID int64
	courseID  int64
}

func (e *seatsExhaustedError) Error() string {
	return fmt.Sprintf("class session %d has no seats left", e.sessionID)
}

// enroll activates one enrollment per line item and takes a seat for each new session
// enrollment. Without strict seats an exhausted session is logged and the student is enrolled anyway.
func (s *service) enroll(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderLineItem, now time.Time) error {
	enrollRepo := s.enrollments.WithTx(tx)
	sessionRepo := s.sessions.WithTx(tx)

	for _, item := range items {
		activation, err := enrollRepo.Activate(ctx, order.UserID, item.CourseID, item.ClassSessionID, now)
		if err != nil {
			return fmt.Errorf("activate enrollment for course %d: %w", item.CourseID, err)
		}
		if !activation.SeatNeeded() {
			continue
		}
		sessionID := *item.ClassSessionID
		taken, err := sessionRepo.DecrementSeat(ctx, sessionID, now)
		if err != nil {
			return fmt.Errorf("take seat in session %d: %w", sessionID, err)
		}
		if taken {
			continue
		}
		if s.strictSeats {
			return &seatsExhaustedError{sessionID: sessionID, courseID: item.CourseID}
		}

		s.metrics.IncOversell()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"class_session_id": sessionID,
			"course_id":        item.CourseID,
		}), "class session oversold; enrollment kept")
		if err := s.emitSeatsExhausted(ctx, tx, order, sessionID, item.CourseID, false, now); err != nil {
			return err
		}
	}
	return nil
}

// holdForSeats runs after a strict-seat rollback: the payment facts are kept, the order is parked
// in em_processamento and operators are alerted. The notification stays claimed and is acknowledged,
// so the enrollment is only retried by a later notification for the same payment (a new
// notification id), once an operator has freed a seat.
func (s *service) holdForSeats(ctx context.Context, orderID int64, gp *mercadopago.Payment, exhausted *seatsExhaustedError) (Result, error) {
	result := Result{Outcome: OutcomeSeatsExhausted, OrderID: orderID}
	now := s.now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, record, err := s.lockOrder(ctx, ordersRepo, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return gorm.ErrRecordNotFound
		}
		result.From = order.Status
		result.Status = order.Status

		mergePayment(record, gp, now)
		record.Status = enums.MapGatewayStatus(gp.Status)
		if err := ordersRepo.SavePayment(ctx, record); err != nil {
			return err
		}
		if order.Status.CanTransitionTo(enums.OrderStatusProcessing) {
			if err := ordersRepo.SaveOrderStatus(ctx, order.ID, enums.OrderStatusProcessing); err != nil {
				return err
			}
			if err := s.emitStatusChanged(ctx, tx, order, enums.OrderStatusProcessing, now); err != nil {
				return err
			}
			result.Status = enums.OrderStatusProcessing
		}
		return s.emitSeatsExhausted(ctx, tx, order, exhausted.sessionID, exhausted.courseID, true, now)
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, OrderID: orderID}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hold order for seats")
	}
	return result, pkgerrors.Wrap(pkgerrors.CodeStateConflict,
		fmt.Errorf("%w: %v", ErrSeatsExhausted, exhausted), "class session has no seats left")
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Source: eventSource},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			From:        order.Status,
			To:          to,
			Source:      eventSource,
		},
		OccurredAt: now,
	})
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.Order, record *models.Payment, items []models.OrderLineItem, now time.Time) error {
	lines := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.OrderLine{
			CourseID:       item.CourseID,
			ClassSessionID: item.ClassSessionID,
			CourseName:     item.CourseName,
			UnitPrice:      item.UnitPrice,
		})
	}
	paidAt := now
	if record.PaidAt != nil {
		paidAt = *record.PaidAt
	}
	event := payloads.OrderPaidEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		Total:       order.Total,
		PaidAt:      paidAt,
		Lines:       lines,
	}
	if record.ExternalPaymentID != nil {
		event.ExternalPaymentID = *record.ExternalPaymentID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Source: eventSource},
		Data:          event,
		OccurredAt:    now,
	})
}

func (s *service) emitSeatsExhausted(ctx context.Context, tx *gorm.DB, order *models.Order, sessionID, courseID int64, strict bool, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSeatsExhausted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Source: eventSource},
		Data: payloads.SeatsExhaustedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			ClassSessionID: sessionID,
			CourseID:       courseID,
			Strict:         strict,
		},
		OccurredAt: now,
	})
}

// mergePayment copies the gateway's payment facts onto the local record.
func mergePayment(record *models.Payment, gp *mercadopago.Payment, now time.Time) {
	record.GatewayStatus = stringPtr(gp.Status)
	record.GatewayStatusDetail = stringPtr(gp.StatusDetail)
	record.PaymentType = stringPtr(gp.PaymentTypeID)
	record.ExternalPaymentID = stringPtr(gp.IDString())
	if method, ok := methodFromGateway(gp.PaymentTypeID, gp.PaymentMethodID); ok {
		record.Method = method
	}
	if gp.TransactionAmount.IsPositive() {
		record.Amount = gp.TransactionAmount
	}
	if gp.Installments > 0 {
		installments := gp.Installments
		record.Installments = &installments
	}
	if isCard(gp.PaymentTypeID) && gp.PaymentMethodID != "" {
		record.CardBrand = stringPtr(gp.PaymentMethodID)
	}
	if gp.Card != nil && gp.Card.LastFourDigits != "" {
		record.CardLastFour = stringPtr(gp.Card.LastFourDigits)
	}
	record.UpdatedAt = now
}

func methodFromGateway(paymentType, paymentMethod string) (enums.PaymentMethod, bool) {
	switch {
	case paymentMethod == "pix":
		return enums.PaymentMethodPix, true
	case paymentType == "ticket":
		return enums.PaymentMethodBoleto, true
	case isCard(paymentType):
		return enums.PaymentMethodCreditCard, true
	default:
		return "", false
	}
}

func isCard(paymentType string) bool {
	return paymentType == "credit_card" || paymentType == "debit_card" || paymentType == "prepaid_card"
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *service) record(ctx context.Context, n Notification) int64 {
	payload := n.Raw
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage(`{}`)
	}
	event := &models.PaymentGatewayEvent{
		Provider:   providerMercadoPago,
		Topic:      n.Type,
		ResourceID: n.ResourceID,
		Payload:    datatypes.JSON(payload),
		Status:     enums.GatewayEventReceived,
	}
	if n.ID != "" {
		id := n.ID
		event.NotificationID = &id
	}
	if len(n.Headers) > 0 {
		if headers, err := json.Marshal(n.Headers); err == nil {
			event.Headers = datatypes.JSON(headers)
		}
	}
	if err := s.events.Record(ctx, event); err != nil {
		s.logg.Error(ctx, "record gateway event failed", err)
		return 0
	}
	return event.ID
}

func (s *service) finish(ctx context.Context, eventID int64, result Result, err error) {
	if eventID == 0 {
		return
	}
	finished := gatewayevents.Result{
		Status:  result.eventStatus(),
		Outcome: string(result.Outcome),
		Err:     err,
	}
	if result.OrderID > 0 {
		orderID := result.OrderID
		finished.OrderID = &orderID
	}
	if finishErr := s.events.Finish(ctx, eventID, finished, s.now()); finishErr != nil {
		s.logg.Error(ctx, "update gateway event failed", finishErr)
	}
}
