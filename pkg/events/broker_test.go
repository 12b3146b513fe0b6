package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/pipeline"
)

func progressEvent(runID string, progress int) pipeline.ProgressEvent {
	return pipeline.ProgressEvent{RunID: runID, Event: "progress", Progress: progress}
}

func collect(t *testing.T, ch <-chan pipeline.ProgressEvent, n int) []pipeline.ProgressEvent {
	t.Helper()
	var out []pipeline.ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d of %d", len(out), n)
		}
	}
	return out
}

func TestBroker_LiveDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	b.Publish(progressEvent("run-1", 0))
	b.Publish(progressEvent("run-1", 15))

	events := collect(t, ch, 2)
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, 15, events[1].Progress)
}

func TestBroker_ReplayForLateSubscriber(t *testing.T) {
	b := NewBroker()
	b.Publish(progressEvent("run-1", 0))
	b.Publish(progressEvent("run-1", 15))

	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	events := collect(t, ch, 2)
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, 15, events[1].Progress)

	// Live events keep flowing after the replay.
	b.Publish(progressEvent("run-1", 30))
	more := collect(t, ch, 1)
	assert.Equal(t, 30, more[0].Progress)
}

func TestBroker_ChannelClosesAfterTerminal(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	b.Publish(progressEvent("run-1", 100))
	b.Publish(pipeline.ProgressEvent{RunID: "run-1", Event: "complete", Progress: 100})

	events := collect(t, ch, 2)
	assert.Equal(t, "complete", events[1].Event)

	_, open := <-ch
	assert.False(t, open, "stream closes after the terminal event")
}

func TestBroker_SubscribeAfterTerminalGetsFullHistory(t *testing.T) {
	b := NewBroker()
	b.Publish(progressEvent("run-1", 0))
	b.Publish(pipeline.ProgressEvent{RunID: "run-1", Event: "complete", Progress: 100})

	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	events := collect(t, ch, 2)
	require.Len(t, events, 2)
	assert.Equal(t, "complete", events[1].Event)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroker_IsolatesRuns(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	b.Publish(progressEvent("run-2", 50))
	b.Publish(progressEvent("run-1", 15))

	events := collect(t, ch, 1)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, 15, events[0].Progress)
}

// Cancelling mid-publish must never panic the publisher: the worker
// goroutine running the pipeline has no recover, so a send on a closed
// channel would take down the whole process. Run with -race.
func TestBroker_PublishCancelRace(t *testing.T) {
	b := NewBroker()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			b.Publish(progressEvent("run-1", i%100))
		}
	}()

	for i := 0; i < 200; i++ {
		ch, cancel := b.Subscribe("run-1")
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel()
		}()
		// Drain whatever arrives until cancel closes the stream.
		for range ch {
		}
	}

	close(stop)
	wg.Wait()
}

// Same hazard on the delayed retention path: forgetting a run while a
// publish for it is still in flight must not close a channel under the
// publisher. Run with -race.
func TestBroker_PublishForgetRace(t *testing.T) {
	b := NewBroker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		ch, cancel := b.Subscribe("run-1")
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			b.Publish(progressEvent("run-1", i%100))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			b.forget("run-1")
		}
	}()

	wg.Wait()
}

func TestBroker_CancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("run-1")
	cancel()

	b.Publish(progressEvent("run-1", 15))

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel should be closed after cancel")
	}
}
