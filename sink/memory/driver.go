// Package memory keeps stored events in process memory. Used by tests and
// for dry runs of the consumer.
package memory

import (
	"context"
	"errors"
	"sync"

	"playrelay/internal/config"
	"playrelay/internal/event"
	"playrelay/sink"
)

var ErrClosed = errors.New("memory-sink: closed")

type Driver struct {
	mu     sync.Mutex
	docs   []event.TrackEvent
	closed bool
}

func New() *Driver { return &Driver{} }

func (d *Driver) InsertOne(_ context.Context, ev event.TrackEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.docs = append(d.docs, ev)
	return nil
}

func (d *Driver) InsertMany(_ context.Context, evs []event.TrackEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.docs = append(d.docs, evs...)
	return nil
}

func (d *Driver) Close(context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Documents returns a copy of everything stored so far, in insert order.
func (d *Driver) Documents() []event.TrackEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.TrackEvent(nil), d.docs...)
}

func init() {
	sink.Register("memory", func(context.Context, config.StoreCfg) (sink.Adapter, error) { return New(), nil })
}
