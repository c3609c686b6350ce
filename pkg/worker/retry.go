package worker

import "context"

// RetryDecision defines whether a message should be retried or Nacked.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy decides what happens to a message whose decode or handler failed.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry nacks failed messages so the broker can redeliver them.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Retry: false, Nack: true}
}

// Drop acks failed messages. Use it for consumers where redelivery would
// only repeat the failure, such as undecodable notifications.
type Drop struct{}

func (Drop) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{}
}
