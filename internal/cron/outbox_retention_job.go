package cron

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	outboxDeleteBatch      = 500
	outboxMaxBatches       = 20
)

type OutboxRetentionJobParams struct {
	Repository outboxRetentionRepo
	Retention  time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	repo      outboxRetentionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published rows in batches so one cycle never holds a long delete.
func (j *outboxRetentionJob) Run(ctx context.Context) (Tally, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	for i := 0; i < outboxMaxBatches; i++ {
		rows, err := j.repo.DeletePublishedBefore(ctx, cutoff, outboxDeleteBatch)
		deleted += rows
		if err != nil {
			return Tally{"rows_deleted": deleted}, fmt.Errorf("delete outbox rows published before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if rows < outboxDeleteBatch {
			break
		}
	}
	return Tally{"rows_deleted": deleted}, nil
}
