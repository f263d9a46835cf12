package client

import (
	"context"
	"time"
)

// TickSource emits the cadence the engine syncs on. The channel closes when
// the source ends.
type TickSource interface {
	Ticks(ctx context.Context) (<-chan struct{}, error)
}

// FrameTicker ticks at a fixed interval, standing in for a render loop's
// per-frame callback.
type FrameTicker struct {
	Interval time.Duration
}

func (f FrameTicker) Ticks(ctx context.Context) (<-chan struct{}, error) {
	interval := f.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	out := make(chan struct{})
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
