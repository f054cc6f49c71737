package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/internal/cart"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/db"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/mercadopago"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/outbox/payloads"
)

const orderNumberConstraint = "orders_order_number_key"

func isOrderNumberCollision(err error) bool {
	// sqlite reports the column instead of the constraint name
	return db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, "orders.order_number")
}

var (
	// ErrEmptyCart is wrapped in a VALIDATION_ERROR when the user has nothing to buy.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartChanged is wrapped in a CONFLICT when the cart entries read for an order were
	// consumed concurrently by another checkout.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrPaymentGateway is wrapped in a DEPENDENCY_ERROR when the preference cannot be created.
	ErrPaymentGateway = errors.New("payment gateway unavailable")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway creates the hosted checkout for an order.
type Gateway interface {
	CreateCheckout(ctx context.Context, req mercadopago.CheckoutRequest) (*mercadopago.Checkout, error)
}

// CreateOrderInput is what the buyer sends to check out their cart.
type CreateOrderInput struct {
	UserID        int64
	CouponCode    string
	PaymentMethod string
}

// Service turns carts into orders.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*orders.OrderDTO, error)
}

type ServiceParams struct {
	Tx          txRunner
	Cart        cart.Repository
	Orders      orders.Repository
	Outbox      outboxPublisher
	Gateway     Gateway
	Discounts   DiscountPolicy
	App         config.AppConfig
	Checkout    config.CheckoutConfig
	MercadoPago config.MercadoPagoConfig
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
	Now         func() time.Time
	OrderNumber func(time.Time) string
}

type service struct {
	tx          txRunner
	cart        cart.Repository
	orders      orders.Repository
	outbox      outboxPublisher
	gateway     Gateway
	discounts   DiscountPolicy
	app         config.AppConfig
	cfg         config.CheckoutConfig
	mp          config.MercadoPagoConfig
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	now         func() time.Time
	orderNumber func(time.Time) string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
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
	discounts := params.Discounts
	if discounts == nil {
		discounts = NewCouponPolicy(params.Checkout)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	orderNumber := params.OrderNumber
	if orderNumber == nil {
		orderNumber = NewOrderNumber
	}
	return &service{
		tx:          params.Tx,
		cart:        params.Cart,
		orders:      params.Orders,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		discounts:   discounts,
		app:         params.App,
		cfg:         params.Checkout,
		mp:          params.MercadoPago,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
		orderNumber: orderNumber,
	}, nil
}

// CreateOrder runs the checkout in two phases: the order is committed locally first, then the
// hosted checkout is created and attached in a second short transaction. A gateway failure
// leaves the order pendente for the expiry sweep.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*orders.OrderDTO, error) {
	if input.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	method, err := s.resolveMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.UserID)

	order, lines, err := s.createLocalOrder(ctx, input, method)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)
	s.metrics.IncOrderCreated()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_number": order.OrderNumber,
		"total":        order.Total.StringFixed(2),
		"method":       method,
	}), "order created")

	checkout, err := s.gateway.CreateCheckout(ctx, s.buildCheckoutRequest(order, lines, method))
	if err != nil {
		s.logg.Error(ctx, "create checkout preference failed; order left pending", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", ErrPaymentGateway, err), "payment gateway unavailable").
			WithDetails(map[string]any{"orderId": order.ID, "orderNumber": order.OrderNumber})
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.WithTx(tx).AttachCheckout(ctx, order.ID, checkout.PreferenceID, checkout.CheckoutURL)
	}); err != nil {
		s.logg.Error(ctx, "attach checkout preference failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save checkout preference")
	}

	stored, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	return orders.ToDTO(stored), nil
}

func (s *service) resolveMethod(raw string) (enums.PaymentMethod, error) {
	if strings.TrimSpace(raw) == "" {
		raw = s.cfg.DefaultMethod
	}
	if strings.TrimSpace(raw) == "" {
		return enums.PaymentMethodMercadoPago, nil
	}
	method, err := enums.ParsePaymentMethod(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method")
	}
	return method, nil
}

func (s *service) createLocalOrder(ctx context.Context, input CreateOrderInput, method enums.PaymentMethod) (*models.Order, []cart.Line, error) {
	attempts := s.cfg.NumberAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		order, lines, err := s.createLocalOrderOnce(ctx, input, method)
		if err == nil {
			return order, lines, nil
		}
		if !isOrderNumberCollision(err) {
			return nil, nil, err
		}
		lastErr = err
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order number collision; retrying")
	}
	return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "could not allocate order number")
}

func (s *service) createLocalOrderOnce(ctx context.Context, input CreateOrderInput, method enums.PaymentMethod) (*models.Order, []cart.Line, error) {
	var (
		order *models.Order
		lines []cart.Line
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cart.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		var err error
		lines, err = cartRepo.ListWithCourses(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if len(lines) == 0 {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart is empty")
		}

		subtotal := decimal.Zero
		for _, line := range lines {
			if !line.Active {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("course %q is no longer available", line.CourseName))
			}
			if !line.Price.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("course %q has no price", line.CourseName))
			}
			subtotal = subtotal.Add(line.Price)
		}
		discount := clampDiscount(s.discounts.Evaluate(input.CouponCode, subtotal), subtotal)
		total := subtotal.Sub(discount)
		if !total.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
		}

		now := s.now().UTC()
		order = &models.Order{
			OrderNumber: s.orderNumber(now),
			UserID:      input.UserID,
			Subtotal:    subtotal,
			Discount:    discount,
			Total:       total,
			Status:      enums.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if discount.IsPositive() {
			code := strings.ToUpper(strings.TrimSpace(input.CouponCode))
			order.CouponCode = &code
		}
		if err := ordersRepo.CreateOrder(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderLineItem, 0, len(lines))
		entryIDs := make([]int64, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderLineItem{
				OrderID:        order.ID,
				CourseID:       line.CourseID,
				ClassSessionID: line.ClassSessionID,
				CourseName:     line.CourseName,
				UnitPrice:      line.Price,
				Quantity:       1,
			})
			entryIDs = append(entryIDs, line.EntryID)
		}
		if err := ordersRepo.CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create line items")
		}
		order.LineItems = items

		payment := &models.Payment{
			OrderID:   order.ID,
			Method:    method,
			Status:    enums.OrderStatusPending,
			Amount:    total,
			ExpiresAt: s.expiresAt(method, now),
		}
		if err := ordersRepo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment record")
		}
		order.Payment = payment

		deleted, err := cartRepo.DeleteEntries(ctx, input.UserID, entryIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		if deleted != int64(len(entryIDs)) {
			// another checkout consumed some of these entries first
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrCartChanged, "cart changed during checkout; reload the cart and try again")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Source: "checkout"},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      input.UserID,
				Total:       total,
				Method:      method,
				LineCount:   len(items),
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return order, lines, nil
}

func (s *service) expiresAt(method enums.PaymentMethod, now time.Time) *time.Time {
	var ttl time.Duration
	switch method {
	case enums.PaymentMethodPix:
		ttl = s.cfg.PixExpiry
	case enums.PaymentMethodBoleto:
		ttl = s.cfg.BoletoExpiry
	default:
		return nil
	}
	at := now.Add(ttl)
	return &at
}

func (s *service) buildCheckoutRequest(order *models.Order, lines []cart.Line, method enums.PaymentMethod) mercadopago.CheckoutRequest {
	prices := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		prices[i] = line.Price
	}
	discounted := allocateDiscount(prices, order.Discount)

	items := make([]mercadopago.CheckoutItem, 0, len(lines))
	for i, line := range lines {
		items = append(items, mercadopago.NewItem(line.CourseID, line.CourseName, discounted[i]))
	}

	orderRef := strconv.FormatInt(order.ID, 10)
	req := mercadopago.CheckoutRequest{
		Items: items,
		BackURLs: mercadopago.BackURLs{
			Success: s.backURL(s.cfg.SuccessPath, orderRef),
			Failure: s.backURL(s.cfg.FailurePath, orderRef),
			Pending: s.backURL(s.cfg.PendingPath, orderRef),
		},
		AutoReturn:          "approved",
		ExternalReference:   orderRef,
		NotificationURL:     s.mp.WebhookURL(s.app.PublicURL),
		StatementDescriptor: s.mp.StatementDescriptor,
		PaymentMethods:      paymentMethodsFor(method),
	}
	if order.Payment != nil && order.Payment.ExpiresAt != nil {
		req.DateOfExpiration = order.Payment.ExpiresAt
	}
	return req
}

func (s *service) backURL(path, orderRef string) string {
	base := strings.TrimRight(s.app.FrontendURL, "/")
	return base + path + "?id=" + url.QueryEscape(orderRef)
}

// paymentMethodsFor narrows the hosted checkout to the payment types behind the chosen method.
func paymentMethodsFor(method enums.PaymentMethod) *mercadopago.PaymentMethods {
	switch method {
	case enums.PaymentMethodPix:
		return mercadopago.ExcludeTypes("credit_card", "debit_card", "ticket", "atm", "prepaid_card")
	case enums.PaymentMethodBoleto:
		return mercadopago.ExcludeTypes("credit_card", "debit_card", "bank_transfer", "atm", "prepaid_card")
	case enums.PaymentMethodCreditCard:
		return mercadopago.ExcludeTypes("ticket", "bank_transfer", "atm")
	default:
		return nil
	}
}
