package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxErrorBackoff       = 10 * time.Second
	errorJitter           = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventRegistry interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
	IsUrgent(enums.OutboxEventType) bool
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Topics     topicSource
	Repository outboxRepository
	Registry   eventRegistry
	DLQ        dlqRepository
	Now        func() time.Time
}

// Service drains outbox_events into Pub/Sub. Payment confirmations and seat alerts are
// published before order lifecycle events claimed in the same batch.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	topics       *topicPublishers
	repo         outboxRepository
	registry     eventRegistry
	dlq          dlqRepository
	now          func() time.Time
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// batchSummary counts what one pass did with the claimed rows.
type batchSummary struct {
	Claimed      int
	Published    map[enums.OutboxEventType]int
	Retried      int
	DeadLettered map[enums.OutboxDLQErrorReason]int
}

func newBatchSummary() batchSummary {
	return batchSummary{
		Published:    map[enums.OutboxEventType]int{},
		DeadLettered: map[enums.OutboxDLQErrorReason]int{},
	}
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Topics == nil:
		return nil, errors.New("topic publishers are required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	cfg := params.Config
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		topics:       newTopicPublishers(params.Topics),
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQ,
		now:          params.Now,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by the next one;
// an empty batch waits one poll interval; a failed batch backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.topics.source.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	errBackoff := s.errorBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		summary, err := s.processBatch(ctx)
		wait := s.pollInterval
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait, _ = errBackoff.Next()
		} else {
			errBackoff = s.errorBackoff()
			if summary.Claimed > 0 {
				continue
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) errorBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxErrorBackoff, b)
	return retry.WithJitter(errorJitter, b)
}

// processBatch claims one batch inside a transaction and settles every row: published,
// scheduled for retry, or dead-lettered.
func (s *Service) processBatch(ctx context.Context) (batchSummary, error) {
	summary := newBatchSummary()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		summary.Claimed = len(events)
		s.urgentFirst(events)

		for _, event := range events {
			if err := s.settle(ctx, tx, event, &summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil && summary.Claimed > 0 {
		s.logBatch(ctx, summary)
	}
	return summary, err
}

// urgentFirst reorders the claimed rows so urgent events lead, keeping claim order otherwise.
func (s *Service) urgentFirst(events []models.OutboxEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return s.registry.IsUrgent(events[i].EventType) && !s.registry.IsUrgent(events[j].EventType)
	})
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, summary *batchSummary) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, nil, err, summary)
	}

	msg := buildMessage(event, resolved)
	if err := s.topics.publish(ctx, resolved.Descriptor.Topic, msg); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return s.deadLetter(ctx, tx, event, resolved, err, summary)
		}
		if event.AttemptCount+1 >= s.maxAttempts {
			return s.deadLetter(ctx, tx, event, resolved, &exhaustedError{attempts: event.AttemptCount + 1, err: err}, summary)
		}

		logCtx := s.logg.WithFields(ctx, eventFields(event, resolved))
		logCtx = s.logg.WithFields(logCtx, map[string]any{"attempt_count": event.AttemptCount + 1, "error": err.Error()})
		if resolved.Descriptor.Urgent {
			s.logg.Error(logCtx, "urgent outbox event publish failed", err)
		} else {
			s.logg.Warn(logCtx, "outbox publish failed")
		}
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		summary.Retried++
		return nil
	}

	if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	summary.Published[event.EventType]++
	s.logg.Debug(s.logg.WithFields(ctx, eventFields(event, resolved)), "outbox event published")
	return nil
}

// exhaustedError marks a transient failure that used up the attempt budget.
type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("max publish attempts reached (%d): %v", e.attempts, e.err)
}

func (e *exhaustedError) Unwrap() error { return e.err }

// dlqReason classifies a terminal failure for the outbox_dlq.error_reason column.
func dlqReason(err error) enums.OutboxDLQErrorReason {
	var exhausted *exhaustedError
	switch {
	case errors.As(err, &exhausted):
		return enums.OutboxDLQReasonMaxAttempts
	case errors.Is(err, registry.ErrUnknownEvent):
		return enums.OutboxDLQReasonUnknownEvent
	case errors.Is(err, registry.ErrMalformedPayload):
		return enums.OutboxDLQReasonMalformedPayload
	case errors.Is(err, errNoPublisher):
		return enums.OutboxDLQReasonNoPublisher
	default:
		return enums.OutboxDLQReasonNonRetryable
	}
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, cause error, summary *batchSummary) error {
	reason := dlqReason(cause)
	msg := cause.Error()

	logCtx := s.logg.WithFields(ctx, eventFields(event, resolved))
	logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": reason, "error": msg})
	if s.registry.IsUrgent(event.EventType) {
		s.logg.Error(logCtx, "urgent outbox event dead-lettered", cause)
	} else {
		s.logg.Warn(logCtx, "outbox event dead-lettered")
	}

	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	summary.DeadLettered[reason]++
	return nil
}

func (s *Service) logBatch(ctx context.Context, summary batchSummary) {
	published := 0
	fields := map[string]any{"claimed": summary.Claimed, "retried": summary.Retried}
	for eventType, n := range summary.Published {
		fields["published_"+string(eventType)] = n
		published += n
	}
	for reason, n := range summary.DeadLettered {
		fields["dlq_"+string(reason)] = n
	}
	fields["published"] = published

	logCtx := s.logg.WithFields(ctx, fields)
	if len(summary.DeadLettered) > 0 {
		s.logg.Warn(logCtx, "outbox batch settled with dead letters")
		return
	}
	s.logg.Info(logCtx, "outbox batch settled")
}
