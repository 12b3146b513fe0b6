// Package events fans pipeline progress out to subscribers: the SSE handler
// and the WebSocket connection manager both consume the broker.
//
// Event stream contract per run: zero or more "progress" events strictly
// precede exactly one terminal event ("complete" or "error"). Late
// subscribers receive the run's full history before live events, so the
// contract holds per subscriber as well.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/componentforge/forge/pkg/pipeline"
)

// subscriberBuffer is each subscriber's channel capacity. A subscriber that
// falls further behind loses events rather than blocking the publisher.
const subscriberBuffer = 64

// historyRetention keeps a finished run's events available for late
// subscribers before the broker forgets the run.
const historyRetention = 5 * time.Minute

// subscriber is one registered consumer. Only the subscriber's own relay
// goroutine reads ch; Publish is the only sender. The event channel is
// never closed — closing it would race a Publish snapshot that is about to
// send, and a send on a closed channel panics the process. Teardown goes
// through stop instead: closing stop is safe at any time because nothing
// ever sends on it.
type subscriber struct {
	ch   chan pipeline.ProgressEvent
	stop chan struct{}
	once sync.Once
}

func (s *subscriber) shutdown() {
	s.once.Do(func() { close(s.stop) })
}

// Broker distributes run progress events. Publish never blocks.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*subscriber
	history map[string][]pipeline.ProgressEvent
	done    map[string]bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs:    make(map[string]map[string]*subscriber),
		history: make(map[string][]pipeline.ProgressEvent),
		done:    make(map[string]bool),
	}
}

// Publish implements pipeline.ProgressSink.
func (b *Broker) Publish(event pipeline.ProgressEvent) {
	b.mu.Lock()
	b.history[event.RunID] = append(b.history[event.RunID], event)
	terminal := event.Event == "complete" || event.Event == "error"
	if terminal {
		b.done[event.RunID] = true
	}
	receivers := make([]*subscriber, 0, len(b.subs[event.RunID]))
	for _, sub := range b.subs[event.RunID] {
		receivers = append(receivers, sub)
	}
	b.mu.Unlock()

	// Sends happen outside the lock so a slow subscriber cannot stall
	// registration. A concurrently cancelled subscriber's channel stays
	// open (teardown signals stop instead), so the send either lands in
	// the buffer or drops; it can never hit a closed channel.
	for _, sub := range receivers {
		select {
		case sub.ch <- event:
		default:
			// Slow subscriber: drop rather than block the pipeline.
		}
	}

	if terminal {
		go func() {
			time.Sleep(historyRetention)
			b.forget(event.RunID)
		}()
	}
}

// Subscribe returns a channel delivering the run's history followed by live
// events, and a cancel function. The channel closes after the terminal
// event (or on cancel).
func (b *Broker) Subscribe(runID string) (<-chan pipeline.ProgressEvent, func()) {
	sub := &subscriber{
		ch:   make(chan pipeline.ProgressEvent, subscriberBuffer),
		stop: make(chan struct{}),
	}
	subID := uuid.New().String()

	b.mu.Lock()
	replay := append([]pipeline.ProgressEvent{}, b.history[runID]...)
	finished := b.done[runID]
	if !finished {
		if b.subs[runID] == nil {
			b.subs[runID] = make(map[string]*subscriber)
		}
		b.subs[runID][subID] = sub
	}
	b.mu.Unlock()

	out := make(chan pipeline.ProgressEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for _, e := range replay {
			select {
			case out <- e:
			case <-sub.stop:
				return
			}
		}
		if finished {
			return
		}
		for {
			select {
			case e := <-sub.ch:
				select {
				case out <- e:
				case <-sub.stop:
					return
				}
				if e.Event == "complete" || e.Event == "error" {
					return
				}
			case <-sub.stop:
				return
			}
		}
	}()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subs[runID]; ok {
			delete(subs, subID)
		}
		b.mu.Unlock()
		sub.shutdown()
	}
	return out, cancel
}

// forget drops a finished run's history and stops any remaining relays. The
// subscriber channels themselves stay open for the same reason as in cancel;
// abandoned buffers are garbage once the relays exit.
func (b *Broker) forget(runID string) {
	b.mu.Lock()
	remaining := make([]*subscriber, 0, len(b.subs[runID]))
	for _, sub := range b.subs[runID] {
		remaining = append(remaining, sub)
	}
	delete(b.subs, runID)
	delete(b.history, runID)
	delete(b.done, runID)
	b.mu.Unlock()

	for _, sub := range remaining {
		sub.shutdown()
	}
}
