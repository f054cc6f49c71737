package orders

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	"github.com/clubemecanico/courses-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, line items and payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, orderID int64) (*models.Order, error)
	FindForUser(ctx context.Context, userID, orderID int64) (*models.Order, error)
	LockByID(ctx context.Context, orderID int64) (*models.Order, error)
	FindLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error)
	FindPayment(ctx context.Context, orderID int64) (*models.Payment, error)
	ListForUser(ctx context.Context, userID int64, params pagination.Params) (*OrderList, error)
	AttachCheckout(ctx context.Context, orderID int64, preferenceID, checkoutURL string) error
	SaveOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) error
	SavePayment(ctx context.Context, payment *models.Payment) error
	ExpirePending(ctx context.Context, orderID int64, now time.Time) (bool, error)
	ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
	ListOrphanOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Payment").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Payment").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID loads the order row with SELECT ... FOR UPDATE. Only meaningful inside a transaction.
func (r *repository) LockByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) FindPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListForUser(ctx context.Context, userID int64, params pagination.Params) (*OrderList, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Preload("Payment").
		Where("user_id = ?", userID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	if len(rows) > pageSize {
		last := rows[pageSize-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:pageSize]
	}
	for _, row := range rows {
		list.Orders = append(list.Orders, summaryFromModel(row))
	}
	return list, nil
}

func (r *repository) AttachCheckout(ctx context.Context, orderID int64, preferenceID, checkoutURL string) error {
	now := time.Now().UTC()
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"preference_id": preferenceID,
			"checkout_url":  checkoutURL,
			"updated_at":    now,
		}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"transaction_id": preferenceID,
			"updated_at":     now,
		}).Error
}

func (r *repository) SaveOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) SavePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == 0 {
		return r.CreatePayment(ctx, payment)
	}
	return r.db.WithContext(ctx).Save(payment).Error
}

// ExpirePending moves a pending order and its payment to expirado. The status guard keeps a
// concurrent approval from being overwritten; false means nothing was pending anymore.
func (r *repository) ExpirePending(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":     enums.OrderStatusExpired,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":     enums.OrderStatusExpired,
			"updated_at": now.UTC(),
		}).Error
	return err == nil, err
}

func (r *repository) ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("method IN ?", []enums.PaymentMethod{enums.PaymentMethodPix, enums.PaymentMethodBoleto}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOrphanOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND checkout_url IS NULL AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
