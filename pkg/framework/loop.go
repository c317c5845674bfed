package framework

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// DefaultQueueSize is the default capacity of the event queue.
const DefaultQueueSize = 4

// Loop is a single-threaded run-to-completion event dispatcher.
// Events are posted from any goroutine into a bounded FIFO and handled one
// at a time, each by all handlers in registration order.
type Loop struct {
	QueueSize int

	handlers []Handler
	runners  []Runnable

	initOnce sync.Once
	queue    chan Event

	posted  uint64
	dropped uint64
	handled uint64
	failed  uint64
}

// LoopStats are the counters of a Loop.
type LoopStats struct {
	Posted  uint64
	Dropped uint64
	Handled uint64
	Failed  uint64
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey).(LoopControl)
	return ctl
}

// NewLoop creates a Loop with the queue capacity, 0 means default.
func NewLoop(queueSize int) *Loop {
	l := &Loop{QueueSize: queueSize}
	l.init()
	return l
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		size := l.QueueSize
		if size <= 0 {
			size = DefaultQueueSize
		}
		l.queue = make(chan Event, size)
	})
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// Handle registers handlers. Runnable handlers are also started by Run.
func (l *Loop) Handle(handlers ...Handler) *Loop {
	l.handlers = append(l.handlers, handlers...)
	for _, h := range handlers {
		if runner, ok := h.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started along with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Post implements Poster.
func (l *Loop) Post(ev Event) error {
	l.init()
	select {
	case l.queue <- ev:
		atomic.AddUint64(&l.posted, 1)
		return nil
	default:
		atomic.AddUint64(&l.dropped, 1)
		glog.V(2).Infof("loop: queue full, dropped %s", ev.EventKind())
		return ErrQueueFull
	}
}

// Pending implements LoopControl.
func (l *Loop) Pending() int {
	l.init()
	return len(l.queue)
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Posted:  atomic.LoadUint64(&l.posted),
		Dropped: atomic.LoadUint64(&l.dropped),
		Handled: atomic.LoadUint64(&l.handled),
		Failed:  atomic.LoadUint64(&l.failed),
	}
}

// Run implements Runnable.
// It returns when ctx is done, a handler returns a fatal error or one of the
// runnables added by AddRunnable fails.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	defer runner.Wait()
	defer runner.Stop()
	runner.Go(l.runners...)
	ctx = runner.Context

	for {
		select {
		case <-runner.Failed():
			runner.Stop()
			return runner.Wait()
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.queue:
			if err := l.dispatch(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// RunPending handles the queued events and returns when the queue is empty.
// It is meant for callers driving the loop themselves, not along with Run.
func (l *Loop) RunPending(ctx context.Context) error {
	l.init()
	ctx = context.WithValue(ctx, loopCtxKey, LoopControl(l))
	for {
		select {
		case ev := <-l.queue:
			if err := l.dispatch(ctx, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail() {
	if err := l.Run(context.TODO()); err != nil {
		log.Fatalln(err)
	}
}

func (l *Loop) dispatch(ctx context.Context, ev Event) error {
	atomic.AddUint64(&l.handled, 1)
	for _, h := range l.handlers {
		err := h.HandleEvent(ctx, ev)
		if err == nil {
			continue
		}
		atomic.AddUint64(&l.failed, 1)
		if IsFatal(err) {
			glog.Errorf("loop: %s: %v", ev.EventKind(), err)
			return err
		}
		glog.Errorf("handler error on %s: %v", ev.EventKind(), err)
	}
	return nil
}
