package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/clubemecanico/courses-backend/internal/orders"
)

const (
	defaultOrphanOrderTTL = 24 * time.Hour
	defaultExpiryBatch    = 200
)

type orderExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (orders.ExpirySummary, error)
	ExpireOrphans(ctx context.Context, cutoff time.Time, limit int) (orders.ExpirySummary, error)
}

// PaymentExpiryJobParams configure the pending payment sweeper.
type PaymentExpiryJobParams struct {
	Orders    orderExpirer
	OrphanTTL time.Duration
	BatchSize int
}

// NewPaymentExpiryJob builds the job that expires lapsed pix/boleto payments and orders
// abandoned before a checkout URL was attached.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.OrphanTTL
	if ttl <= 0 {
		ttl = defaultOrphanOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &paymentExpiryJob{
		orders:    params.Orders,
		orphanTTL: ttl,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type paymentExpiryJob struct {
	orders    orderExpirer
	orphanTTL time.Duration
	batch     int
	now       func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

// Run sweeps both queues; an overdue failure does not stop the orphan sweep.
func (j *paymentExpiryJob) Run(ctx context.Context) (Tally, error) {
	var errs error

	overdue, err := j.orders.ExpireOverdue(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire overdue payments: %w", err))
	}

	cutoff := j.now().UTC().Add(-j.orphanTTL)
	orphans, err := j.orders.ExpireOrphans(ctx, cutoff, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire orphan orders: %w", err))
	}

	return Tally{
		"overdue_scanned": int64(overdue.Scanned),
		"overdue_expired": int64(overdue.Expired),
		"orphan_scanned":  int64(orphans.Scanned),
		"orphan_expired":  int64(orphans.Expired),
	}, errs
}
