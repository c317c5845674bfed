package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Event is a tagged unit of work dispatched by the Loop.
type Event interface {
	// EventKind names the variant, used for logging.
	EventKind() string
}

// Handler processes events in the loop.
// Returning an error wrapped by Fatal stops the loop.
type Handler interface {
	HandleEvent(context.Context, Event) error
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(context.Context, Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Poster accepts events from any goroutine.
type Poster interface {
	// Post enqueues the event without blocking.
	// ErrQueueFull is returned and the event dropped when the queue is full.
	Post(Event) error
}

// LoopControl exposes access to the running loop.
type LoopControl interface {
	Poster
	// Pending returns the number of queued events.
	Pending() int
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}
