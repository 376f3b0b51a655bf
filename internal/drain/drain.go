// Package drain receives bursts of values from channels, so that consumers
// (e.g. websocket writers) handle one batch per burst, rather than one write
// per value.
package drain

import (
	"context"
	"io"
	"time"
)

// Config bounds a single call to Batch. The zero value (or nil) selects the
// documented defaults.
type Config struct {
	// MaxSize caps the number of values received per batch. Negative means
	// no cap. Defaults to 16.
	MaxSize int

	// MinSize is the number of values the batch waits for, until Window
	// elapses. Negative means the batch may be empty, with Window timed from
	// the start of the call. Defaults to 1.
	MinSize int

	// Window is how long a partial batch waits for more values, timed from
	// the first value received. Defaults to 25ms.
	Window time.Duration
}

type limits struct {
	maxSize int
	minSize int
	window  time.Duration
}

func (x *Config) limits() limits {
	l := limits{maxSize: 16, minSize: 1, window: 25 * time.Millisecond}
	if x != nil {
		if x.MaxSize != 0 {
			l.maxSize = x.MaxSize
		}
		if x.MinSize != 0 {
			l.minSize = x.MinSize
		}
		if x.Window != 0 {
			l.window = x.Window
		}
	}
	return l
}

func (x limits) full(size int) bool {
	return x.maxSize >= 0 && size >= x.maxSize
}

// Batch blocks until it has received a batch of values from ch, passing each
// to handler, in order. After the minimum size is reached (or the window
// elapses), any values already buffered are also received, up to the maximum
// size. Returns io.EOF if ch is closed, the first error from handler, or the
// context error.
func Batch[T any](ctx context.Context, cfg *Config, ch <-chan T, handler func(value T) error) error {
	if ctx == nil {
		panic(`drain: nil context`)
	}
	if ch == nil {
		panic(`drain: nil channel`)
	}
	if handler == nil {
		panic(`drain: nil handler`)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := cfg.limits()

	var (
		size   int
		timer  *time.Timer
		window <-chan time.Time
	)
	startWindow := func() {
		if l.window > 0 && timer == nil {
			timer = time.NewTimer(l.window)
			window = timer.C
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	if l.minSize < 0 {
		startWindow()
	}

	receive := func(value T, ok bool) error {
		if !ok {
			return io.EOF
		}
		size++
		startWindow()
		return handler(value)
	}

	// wait phase: block until the minimum is reached, or the window elapses
wait:
	for !l.full(size) && (size < l.minSize || (size == 0 && window != nil)) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-window:
			break wait
		case value, ok := <-ch:
			if err := receive(value, ok); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// collect phase: take whatever is already buffered, without blocking
	for !l.full(size) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case value, ok := <-ch:
			if err := receive(value, ok); err != nil {
				return err
			}
		default:
			return ctx.Err()
		}
	}

	return ctx.Err()
}

// Latest receives a batch, as Batch does, returning only the last value, and
// the number of values received. Intermediate values are discarded, which is
// only appropriate where each value supersedes the previous one.
func Latest[T any](ctx context.Context, cfg *Config, ch <-chan T) (last T, n int, err error) {
	err = Batch(ctx, cfg, ch, func(value T) error {
		last = value
		n++
		return nil
	})
	return
}

// Offer sends value to ch without blocking. If ch is full, the oldest
// buffered value is discarded to make room, and dropped is true. It must not
// be called concurrently with other sends on ch. Returns false, false if
// value could still not be sent, e.g. for an unbuffered channel with no
// receiver.
func Offer[T any](ch chan T, value T) (sent, dropped bool) {
	select {
	case ch <- value:
		return true, false
	default:
	}
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- value:
		return true, dropped
	default:
		return false, dropped
	}
}
