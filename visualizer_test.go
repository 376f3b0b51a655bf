package loopviz

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()

	loop, err := eventloop.New(eventloop.WithStrictMicrotaskOrdering(true))
	if err != nil {
		t.Fatalf("eventloop.New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = loop.Shutdown(shutdownCtx)
		cancel()
		<-done
	})

	return loop
}

func newTestVisualizer(t *testing.T, opts ...Option) *Visualizer {
	t.Helper()
	viz, err := New(newTestLoop(t), opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return viz
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func runAndWait(t *testing.T, viz *Visualizer) *Snapshot {
	t.Helper()
	ctx := testContext(t)
	h, err := viz.Run(ctx)
	require.NoError(t, err)
	s, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Err())
	return s
}

func itemsByKind(s *Snapshot, kind Kind) (ids []string) {
	for _, v := range s.Items {
		if v.Kind == kind {
			ids = append(ids, v.ID)
		}
	}
	return
}

// assertRanksArePermutation checks every item has a rank, and the ranks are
// exactly 1..len(items).
func assertRanksArePermutation(t *testing.T, s *Snapshot) {
	t.Helper()
	ranks := make([]int, 0, len(s.Items))
	for _, v := range s.Items {
		rank, ok := s.Rank(v.ID)
		if !ok {
			t.Errorf("item %s has no rank", v.ID)
			continue
		}
		ranks = append(ranks, rank)
	}
	slices.Sort(ranks)
	for i, rank := range ranks {
		if rank != i+1 {
			t.Fatalf("ranks are not a permutation of 1..%d: %v", len(s.Items), ranks)
		}
	}
}

// assertPhaseOrdering checks that items of a lower phase always fire before
// items of a higher phase.
func assertPhaseOrdering(t *testing.T, s *Snapshot) {
	t.Helper()
	for _, a := range s.Items {
		for _, b := range s.Items {
			if a.Kind.Phase() >= b.Kind.Phase() {
				continue
			}
			ra, _ := s.Rank(a.ID)
			rb, _ := s.Rank(b.ID)
			if ra >= rb {
				t.Errorf("%s (%s, rank %d) fired after %s (%s, rank %d)", a.ID, a.Kind, ra, b.ID, b.Kind, rb)
			}
		}
	}
}

func TestNew_nilLoop(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_initialSnapshot(t *testing.T) {
	viz := newTestVisualizer(t)

	s := viz.Snapshot()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.RunCount)
	assert.False(t, s.Executing)
	assert.Empty(t, s.Order)
	assert.Empty(t, s.SyncLog)
	assert.Empty(t, s.AsyncLog)
	assert.False(t, s.Banners.Any())
	assert.Equal(t, DefaultCapacity, s.Capacity)

	var templateIDs []string
	for _, v := range s.Items {
		templateIDs = append(templateIDs, v.TemplateID)
	}
	assert.Equal(t, []string{`1`, `2`, `3`, `4`}, templateIDs)
}

func TestNew_initialExceedsCapacity(t *testing.T) {
	_, err := New(newTestLoop(t), WithCapacity(2))
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestNew_initialUnknownTemplate(t *testing.T) {
	_, err := New(newTestLoop(t), WithInitialTemplates(`1`, `nope`))
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestVisualizer_Run_defaultList(t *testing.T) {
	viz := newTestVisualizer(t)

	s := runAndWait(t, viz)

	assert.False(t, s.Executing)
	assert.Equal(t, 1, s.RunCount)
	assert.NotEmpty(t, s.RunID)
	assert.Len(t, s.SyncLog, len(itemsByKind(s, Immediate)))
	assert.Len(t, s.AsyncLog, 3)
	assertRanksArePermutation(t, s)
	assertPhaseOrdering(t, s)

	// the only synchronous item fires first, then the promise
	assert.Equal(t, 1, s.SyncLog[0].Rank)
	assert.Equal(t, `Synchronous event (Immediate execution) executed`, s.SyncLog[0].Message())
	assert.Equal(t, MicrotaskPromise, s.AsyncLog[0].Kind)
}

func TestVisualizer_Run_scenarios(t *testing.T) {
	for _, tc := range [...]struct {
		Name    string
		Initial []string
		Sync    int
		Async   int
		Check   func(t *testing.T, s *Snapshot)
	}{
		{
			Name:    `single sync`,
			Initial: []string{`4`},
			Sync:    1,
			Check: func(t *testing.T, s *Snapshot) {
				rank, ok := s.Rank(s.Items[0].ID)
				require.True(t, ok)
				assert.Equal(t, 1, rank)
			},
		},
		{
			Name:    `timeout displayed before promise`,
			Initial: []string{`2`, `1`},
			Async:   2,
			Check: func(t *testing.T, s *Snapshot) {
				timer, _ := s.Rank(s.Items[0].ID)
				promise, _ := s.Rank(s.Items[1].ID)
				assert.Less(t, promise, timer)
			},
		},
		{
			Name:    `promise with timeout`,
			Initial: []string{`5`},
			Async:   1,
		},
		{
			Name:    `repeating timer counts once`,
			Initial: []string{`3`, `3`},
			Async:   2,
		},
		{
			Name:    `syncs in display order`,
			Initial: []string{`1`, `4`, `2`, `4`, `5`, `4`},
			Sync:    3,
			Async:   3,
			Check: func(t *testing.T, s *Snapshot) {
				for i, entry := range s.SyncLog {
					assert.Equal(t, i+1, entry.Rank)
				}
				assert.Equal(t, itemsByKind(s, Immediate), []string{
					s.SyncLog[0].InstanceID,
					s.SyncLog[1].InstanceID,
					s.SyncLog[2].InstanceID,
				})
			},
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			viz := newTestVisualizer(t, WithInitialTemplates(tc.Initial...))
			s := runAndWait(t, viz)
			assert.Len(t, s.SyncLog, tc.Sync)
			assert.Len(t, s.AsyncLog, tc.Async)
			assert.Len(t, s.Order, len(tc.Initial))
			assertRanksArePermutation(t, s)
			assertPhaseOrdering(t, s)
			if tc.Check != nil {
				tc.Check(t, s)
			}
		})
	}
}

func TestVisualizer_Run_empty(t *testing.T) {
	viz := newTestVisualizer(t, WithInitialTemplates())
	ctx := testContext(t)

	h, err := viz.Run(ctx)
	require.ErrorIs(t, err, ErrEmptyExecutionList)
	require.Nil(t, h)

	s := viz.Snapshot()
	assert.Equal(t, `Add events to execute`, s.Banners.EmptyExecutionList)
	assert.Equal(t, 0, s.RunCount)
	assert.False(t, s.Executing)

	// adding clears the banner
	_, err = viz.Add(ctx, `4`)
	require.NoError(t, err)
	assert.False(t, viz.Snapshot().Banners.Any())
}

func TestVisualizer_Run_resetsPerRun(t *testing.T) {
	viz := newTestVisualizer(t)

	first := runAndWait(t, viz)
	second := runAndWait(t, viz)

	assert.Equal(t, 2, second.RunCount)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, second.SyncLog, len(first.SyncLog))
	assert.Len(t, second.AsyncLog, len(first.AsyncLog))
	assert.Len(t, second.Order, len(second.Items))
	assertRanksArePermutation(t, second)
}

func TestVisualizer_busyWhileRunning(t *testing.T) {
	viz := newTestVisualizer(t,
		WithInitialTemplates(`4`, `2`),
		WithTimerDelay(200*time.Millisecond),
	)
	ctx := testContext(t)

	h, err := viz.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.Number())
	require.Len(t, h.Items(), 2)

	s := viz.Snapshot()
	require.True(t, s.Executing)
	// the synchronous item already fired
	assert.Len(t, s.SyncLog, 1)
	assert.Empty(t, s.AsyncLog)

	_, err = viz.Add(ctx, `1`)
	require.ErrorIs(t, err, ErrBusyWhileRunning)
	assert.Equal(t, `Can't add events while function is running`, viz.Snapshot().Banners.CantAddWhileRunning)

	_, err = viz.Run(ctx)
	require.ErrorIs(t, err, ErrBusyWhileRunning)

	require.ErrorIs(t, viz.Clear(ctx), ErrBusyWhileRunning)

	select {
	case <-h.Done():
		t.Fatal("run settled early")
	default:
	}

	s, err = h.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, s.Executing)
	assert.Len(t, s.AsyncLog, 1)
	assert.Len(t, s.Items, 2)
	// banner persists until the next successful add
	assert.NotEmpty(t, s.Banners.CantAddWhileRunning)

	_, err = viz.Add(ctx, `1`)
	require.NoError(t, err)
	assert.False(t, viz.Snapshot().Banners.Any())
}

func TestVisualizer_removeWhileRunning(t *testing.T) {
	viz := newTestVisualizer(t,
		WithInitialTemplates(`2`, `4`),
		WithTimerDelay(100*time.Millisecond),
	)
	ctx := testContext(t)

	h, err := viz.Run(ctx)
	require.NoError(t, err)
	timerID := h.Items()[0].ID

	removed, err := viz.Remove(ctx, timerID)
	require.NoError(t, err)
	require.True(t, removed)

	s, err := h.Wait(ctx)
	require.NoError(t, err)

	assert.Len(t, s.Items, 1)
	require.Len(t, s.AsyncLog, 1)
	assert.Equal(t, timerID, s.AsyncLog[0].InstanceID)
	rank, ok := s.Rank(timerID)
	assert.True(t, ok)
	assert.Equal(t, 2, rank)
	assert.Equal(t, []string{s.Items[0].ID, timerID}, s.FiringOrder())
}

func TestVisualizer_Add_capacity(t *testing.T) {
	viz := newTestVisualizer(t)
	ctx := testContext(t)

	for len(viz.Snapshot().Items) < DefaultCapacity {
		_, err := viz.Add(ctx, `5`)
		require.NoError(t, err)
	}

	_, err := viz.Add(ctx, `1`)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	s := viz.Snapshot()
	assert.Len(t, s.Items, DefaultCapacity)
	assert.Equal(t, `Max event limit is 10`, s.Banners.EventLimit)

	removed, err := viz.Remove(ctx, s.Items[0].ID)
	require.NoError(t, err)
	require.True(t, removed)

	v, err := viz.Add(ctx, `1`)
	require.NoError(t, err)
	assert.Equal(t, `1`, v.TemplateID)
	assert.False(t, viz.Snapshot().Banners.Any())
}

func TestVisualizer_Add_customCapacity(t *testing.T) {
	viz := newTestVisualizer(t, WithCapacity(1), WithInitialTemplates())
	ctx := testContext(t)

	_, err := viz.Add(ctx, `4`)
	require.NoError(t, err)
	_, err = viz.Add(ctx, `4`)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, `Max event limit is 1`, viz.Snapshot().Banners.EventLimit)
}

func TestVisualizer_Add_unknownTemplate(t *testing.T) {
	viz := newTestVisualizer(t)
	before := viz.Snapshot()

	_, err := viz.Add(testContext(t), `99`)
	require.ErrorIs(t, err, ErrUnknownTemplate)
	assert.Equal(t, before.Version, viz.Snapshot().Version)
}

func TestVisualizer_Add_uniqueIDs(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	viz := newTestVisualizer(t,
		WithInitialTemplates(),
		WithClock(func() time.Time { return now }),
	)
	ctx := testContext(t)

	a, err := viz.Add(ctx, `1`)
	require.NoError(t, err)
	b, err := viz.Add(ctx, `1`)
	require.NoError(t, err)

	assert.Equal(t, `1-1700000000000`, a.ID)
	assert.Equal(t, `1-1700000000001`, b.ID)
}

func TestVisualizer_Reorder(t *testing.T) {
	viz := newTestVisualizer(t)
	ctx := testContext(t)

	ids := func() (ids []string) {
		for _, v := range viz.Snapshot().Items {
			ids = append(ids, v.TemplateID)
		}
		return
	}
	item := func(i int) string { return viz.Snapshot().Items[i].ID }

	require.NoError(t, viz.Reorder(ctx, item(0), item(2)))
	assert.Equal(t, []string{`2`, `3`, `1`, `4`}, ids())

	require.NoError(t, viz.Reorder(ctx, item(3), item(0)))
	assert.Equal(t, []string{`4`, `2`, `3`, `1`}, ids())

	version := viz.Snapshot().Version
	require.NoError(t, viz.Reorder(ctx, item(1), item(1)))
	require.NoError(t, viz.Reorder(ctx, item(1), `missing`))
	assert.Equal(t, version, viz.Snapshot().Version)
	assert.Equal(t, []string{`4`, `2`, `3`, `1`}, ids())
}

func TestVisualizer_Clear(t *testing.T) {
	viz := newTestVisualizer(t)
	ctx := testContext(t)

	require.NoError(t, viz.Clear(ctx))
	assert.Empty(t, viz.Snapshot().Items)

	_, err := viz.Run(ctx)
	require.ErrorIs(t, err, ErrEmptyExecutionList)
}

func TestVisualizer_Remove_missing(t *testing.T) {
	viz := newTestVisualizer(t)
	removed, err := viz.Remove(testContext(t), `missing`)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, viz.Snapshot().Items, 4)
}

func TestVisualizer_Subscribe(t *testing.T) {
	viz := newTestVisualizer(t)
	ctx := testContext(t)

	var (
		mu       sync.Mutex
		versions []uint64
		settled  int
	)
	unsubscribe := viz.Subscribe(ObserverFunc(func(s *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, s.Version)
		if !s.Executing && s.RunCount == 1 {
			settled++
		}
	}))

	runAndWait(t, viz)
	unsubscribe()

	mu.Lock()
	count := len(versions)
	assert.True(t, slices.IsSorted(versions))
	// start, one per completion
	assert.Equal(t, 1+4, count)
	assert.Equal(t, 1, settled)
	mu.Unlock()

	_, err := viz.Add(ctx, `1`)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, versions, count)
	mu.Unlock()
}

func TestVisualizer_Close(t *testing.T) {
	viz := newTestVisualizer(t)
	require.NoError(t, viz.Close())
	require.ErrorIs(t, viz.Close(), ErrClosed)

	_, err := viz.Add(testContext(t), `1`)
	require.ErrorIs(t, err, ErrClosed)
	_, err = viz.Run(testContext(t))
	require.ErrorIs(t, err, ErrClosed)
}

func TestVisualizer_loopTerminated(t *testing.T) {
	loop := newTestLoop(t)
	viz, err := New(loop)
	require.NoError(t, err)

	ctx := testContext(t)
	_ = loop.Shutdown(ctx)

	_, err = viz.Run(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, eventloop.ErrLoopTerminated), "unexpected error: %v", err)
}

func TestRunHandle_Wait_canceled(t *testing.T) {
	viz := newTestVisualizer(t,
		WithInitialTemplates(`2`),
		WithTimerDelay(time.Second),
	)

	h, err := viz.Run(testContext(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := h.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, s)

	s, err = h.Wait(testContext(t))
	require.NoError(t, err)
	assert.Len(t, s.AsyncLog, 1)
}

func TestVisualizer_canceledContext(t *testing.T) {
	viz := newTestVisualizer(t)
	before := viz.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 10 {
		_, err := viz.Add(ctx, `4`)
		require.ErrorIs(t, err, context.Canceled)
	}
	h, err := viz.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, h)
	require.ErrorIs(t, viz.Clear(ctx), context.Canceled)

	after := viz.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Items, len(before.Items))
	assert.Equal(t, 0, after.RunCount)
	assert.False(t, after.Executing)

	// nothing was left running
	s := runAndWait(t, viz)
	assert.Equal(t, 1, s.RunCount)
}

func TestVisualizer_call_canceledWhileQueued(t *testing.T) {
	viz := newTestVisualizer(t)

	// hold the loop, so the call is still queued when ctx is canceled
	release := make(chan struct{})
	require.NoError(t, viz.loop.Submit(func() { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := viz.Run(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	close(release)

	s, err := viz.Add(testContext(t), `4`)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	snapshot := viz.Snapshot()
	assert.Equal(t, 0, snapshot.RunCount)
	assert.False(t, snapshot.Executing)
}
