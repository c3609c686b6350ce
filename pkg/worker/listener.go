package worker

import "context"

// Listener provides hooks into the worker's lifecycle for logging, metrics, etc.
type Listener struct {
	// OnStart is called when the worker starts.
	OnStart func(ctx context.Context)
	// OnExit is called when the worker exits.
	OnExit func(ctx context.Context)
	// OnMessageStart is called when a notification has been decoded.
	OnMessageStart func(ctx context.Context, evt *Event)
	// OnMessageFinish is called when a notification has been handled.
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError is called when decoding or handling fails. evt is nil for decode failures.
	OnError func(ctx context.Context, evt *Event, err error)
}
