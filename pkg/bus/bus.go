package bus

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-core/pkg/a2a"
)

// subscriberBuffer bounds how far a subscriber may lag behind the producer
// before it is dropped.
const subscriberBuffer = 256

var (
	// ErrSubscriberOverflow is reported on a subscription whose buffer
	// filled up. Only that consumer is affected.
	ErrSubscriberOverflow = errors.New("subscriber buffer overflow")
	// ErrBusFinished is reported when subscribing to a bus that already
	// signalled end-of-stream.
	ErrBusFinished = errors.New("bus already finished")
)

/*
Bus is a single-producer multi-consumer channel scoped to one task
execution. Events reach every live subscriber in publish order; a slow
subscriber is dropped rather than allowed to stall the producer.
*/
type Bus struct {
	taskID   string
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	finished bool
}

func New(taskID string) *Bus {
	return &Bus{
		taskID: taskID,
		subs:   make(map[*Subscription]struct{}),
	}
}

// TaskID returns the task this bus belongs to.
func (bus *Bus) TaskID() string {
	return bus.taskID
}

/*
Publish delivers evt to every live subscriber without blocking. Publishes
after Finished are dropped.
*/
func (bus *Bus) Publish(evt a2a.Event) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.finished {
		log.Debug("publish after finished dropped", "task_id", bus.taskID, "kind", evt.EventKind())
		return
	}

	for sub := range bus.subs {
		if !sub.send(evt) {
			// buffer full – this consumer is too slow to keep.
			log.Warn("dropping slow subscriber", "task_id", bus.taskID)
			sub.fail(ErrSubscriberOverflow)
			delete(bus.subs, sub)
		}
	}
}

/*
Subscribe registers a consumer. Subscribers registered before the first
publish observe every event; late subscribers observe only events published
after registration. Subscribing to a finished bus yields a subscription
whose channel is already closed and whose Err reports ErrBusFinished.
*/
func (bus *Bus) Subscribe() *Subscription {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	sub := &Subscription{
		bus: bus,
		ch:  make(chan a2a.Event, subscriberBuffer),
	}

	if bus.finished {
		sub.fail(ErrBusFinished)
		return sub
	}

	bus.subs[sub] = struct{}{}
	return sub
}

/*
Finished signals end-of-stream to every subscriber. It is idempotent and
carries no payload: consumers observe it as their event channel closing.
*/
func (bus *Bus) Finished() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.finished {
		return
	}

	bus.finished = true

	for sub := range bus.subs {
		sub.close()
	}
	bus.subs = make(map[*Subscription]struct{})
}

func (bus *Bus) release(sub *Subscription) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, ok := bus.subs[sub]; ok {
		delete(bus.subs, sub)
		sub.close()
	}
}

/*
Subscription is one consumer's view of a Bus. Events arrive on Events() in
publish order; the channel closes on end-of-stream or when the subscription
is dropped, after which Err tells the two cases apart.
*/
type Subscription struct {
	bus    *Bus
	ch     chan a2a.Event
	mu     sync.Mutex
	err    error
	closed bool
}

// Events returns the channel events are delivered on.
func (sub *Subscription) Events() <-chan a2a.Event {
	return sub.ch
}

// Err reports why the subscription ended. It is nil after a clean
// end-of-stream.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close releases the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.bus.release(sub)
}

func (sub *Subscription) send(evt a2a.Event) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return true
	}

	select {
	case sub.ch <- evt:
		return true
	default:
		return false
	}
}

func (sub *Subscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}

	sub.err = err
	sub.closed = true
	close(sub.ch)
}

func (sub *Subscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}

	sub.closed = true
	close(sub.ch)
}
