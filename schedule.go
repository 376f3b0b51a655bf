package loopviz

import "time"

// completion is the action taken when a single scheduled instance fires. It
// is only ever accessed on the loop goroutine.
type completion struct {
	viz        *Visualizer
	run        *RunHandle
	item       Instance
	intervalID uint64
	fired      bool
}

// submit schedules v according to its kind. Immediate instances complete
// inline, before submit returns.
func (x *Visualizer) submit(h *RunHandle, v Instance) {
	c := &completion{viz: x, run: h, item: v}
	delay := delayMillis(x.timerDelay)

	switch v.Kind {
	case Immediate:
		c.fire()

	case DeferredTimer:
		if _, err := x.js.SetTimeout(c.fire, delay); err != nil {
			c.fail(err)
		}

	case MicrotaskPromise:
		x.js.Resolve(nil).Then(c.onFulfilled, nil)

	case MicrotaskThenTimer:
		x.js.Resolve(nil).Then(func(any) any {
			if _, err := x.js.SetTimeout(c.fire, delay); err != nil {
				c.fail(err)
			}
			return nil
		}, nil)

	case RepeatingTimer:
		id, err := x.js.SetInterval(c.tick, delay)
		if err != nil {
			c.fail(err)
			return
		}
		c.intervalID = id

	default:
		c.fail(ErrUnknownTemplate)
	}
}

func (c *completion) onFulfilled(any) any {
	c.fire()
	return nil
}

// tick is the interval callback, which cancels the interval on the first
// invocation, so each instance fires exactly once per run.
func (c *completion) tick() {
	if err := c.viz.js.ClearInterval(c.intervalID); err != nil {
		c.viz.logger.Warning().
			Err(err).
			Str(`id`, c.item.ID).
			Uint64(`interval`, c.intervalID).
			Log(`failed to clear interval`)
	}
	c.fire()
}

func (c *completion) fire() {
	if c.fired {
		return
	}
	c.fired = true

	x := c.viz
	if c.run != x.current {
		return
	}

	entry := x.sink.record(c.item)
	x.logger.Debug().
		Str(`run_id`, c.run.id).
		Str(`id`, entry.InstanceID).
		Int(`rank`, entry.Rank).
		Stringer(`kind`, entry.Kind).
		Log(entry.Message())

	x.settle(c.run)
}

// fail settles the instance without assigning a rank.
func (c *completion) fail(err error) {
	if c.fired {
		return
	}
	c.fired = true

	x := c.viz
	c.run.errs = append(c.run.errs, &SubmitError{
		Err:        err,
		InstanceID: c.item.ID,
		Kind:       c.item.Kind,
	})
	x.logger.Err().
		Err(err).
		Str(`run_id`, c.run.id).
		Str(`id`, c.item.ID).
		Stringer(`kind`, c.item.Kind).
		Log(`failed to schedule event`)

	x.settle(c.run)
}

func delayMillis(d time.Duration) int {
	return int(d / time.Millisecond)
}
