package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// observerQueueSize bounds the snapshots waiting for delivery to observers.
// Once full, new snapshots are dropped and logged.
const observerQueueSize = 256

type observerItem struct {
	snap  Snapshot
	flush chan struct{}
}

// dispatcher hands snapshots to observers on its own goroutine, in the order
// they were published. Publishing never blocks the caller.
type dispatcher struct {
	observers []Observer
	queue     chan observerItem
	done      chan struct{}

	// publish and flush hold the read lock while sending; close takes the
	// write lock so no send races the channel close.
	mu     sync.RWMutex
	closed bool
}

func newDispatcher(observers []Observer) *dispatcher {
	d := &dispatcher{
		observers: observers,
		queue:     make(chan observerItem, observerQueueSize),
		done:      make(chan struct{}),
	}
	if len(observers) == 0 {
		close(d.done)
		d.closed = true
		return d
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for item := range d.queue {
		if item.flush != nil {
			close(item.flush)
			continue
		}
		for _, obs := range d.observers {
			deliver(obs, item.snap)
		}
	}
}

func deliver(obs Observer, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("job", snap.ID).Interface("panic", r).Msg("Job observer panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()
	obs.Observe(ctx, snap)
}

// publish queues snap for the observers.
func (d *dispatcher) publish(snap Snapshot) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- observerItem{snap: snap}:
	default:
		log.Warn().
			Str("job", snap.ID).
			Str("state", snap.State.String()).
			Msg("Observer queue full, snapshot dropped")
	}
}

// flush waits until every snapshot published before the call was delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	ack := make(chan struct{})

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		select {
		case <-d.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case d.queue <- observerItem{flush: ack}:
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}
	d.mu.RUnlock()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting snapshots and waits for the queue to drain.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
