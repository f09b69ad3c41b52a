package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/perimetric/zonewatch/internal/log"
	"github.com/perimetric/zonewatch/pkg/zone"
)

// Queue decouples a slow sink from the pipeline loop. Enqueueing never
// blocks: when the buffer is full the oldest pending event is dropped so
// the consumer always sees the freshest backlog. Delivery order of the
// surviving events is preserved.
type Queue struct {
	sink    EventSink
	ch      chan zone.Event
	dropped atomic.Int64
	done    chan struct{}
}

// NewQueue wraps sink behind a buffer of the given size. Call Start
// before feeding events.
func NewQueue(sink EventSink, size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		sink: sink,
		ch:   make(chan zone.Event, size),
		done: make(chan struct{}),
	}
}

// Start runs the delivery worker until the context is cancelled. Events
// still buffered at cancellation are discarded.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-q.ch:
				if err := q.sink.HandleEvent(ctx, ev); err != nil {
					log.Error("queued event delivery failed",
						"event", ev.Kind.String(),
						"zone", ev.ZoneID,
						"track", ev.TrackID,
						"error", err,
					)
				}
			}
		}
	}()
}

// HandleEvent enqueues without blocking, evicting the oldest buffered
// event when full. Implements EventSink so a Queue can front any sink.
func (q *Queue) HandleEvent(_ context.Context, ev zone.Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
	}

	// Full: make room by evicting the head. The worker may race us for
	// it, which is fine either way.
	select {
	case old := <-q.ch:
		q.dropped.Add(1)
		log.Warn("event queue full, dropping oldest",
			"dropped_event", old.Kind.String(),
			"dropped_zone", old.ZoneID,
			"total_dropped", q.dropped.Load(),
		)
	default:
	}

	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many events were evicted since startup.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Wait blocks until the delivery worker has exited.
func (q *Queue) Wait() {
	<-q.done
}
