package enums

// OutboxDLQErrorReason classifies why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts      OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonUnknownEvent     OutboxDLQErrorReason = "unknown_event"
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	OutboxDLQReasonNoPublisher      OutboxDLQErrorReason = "no_publisher"
	OutboxDLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonUnknownEvent,
	OutboxDLQReasonMalformedPayload,
	OutboxDLQReasonNoPublisher,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
