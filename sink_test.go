package loopviz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionSink(t *testing.T) {
	var sink executionSink
	sink.reset()

	promise := Instance{ID: `1-1`, Label: `Promise event (Micro Task Queue)`, Kind: MicrotaskPromise}
	sync := Instance{ID: `4-2`, Label: `Synchronous event (Immediate execution)`, Kind: Immediate}

	a := sink.record(sync)
	b := sink.record(promise)
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, 2, b.Rank)
	assert.Equal(t, `Promise event (Micro Task Queue) executed`, b.Message())

	var s Snapshot
	sink.copyTo(&s)
	require.Len(t, s.SyncLog, 1)
	require.Len(t, s.AsyncLog, 1)
	assert.Equal(t, map[string]int{`4-2`: 1, `1-1`: 2}, s.Order)
	assert.Equal(t, []string{`4-2`, `1-1`}, s.FiringOrder())

	// snapshots are isolated from later records
	sink.record(Instance{ID: `2-3`, Kind: DeferredTimer})
	assert.Len(t, s.AsyncLog, 1)
	assert.Len(t, s.Order, 2)

	sink.reset()
	sink.copyTo(&s)
	assert.NotNil(t, s.Order)
	assert.NotNil(t, s.SyncLog)
	assert.NotNil(t, s.AsyncLog)
	assert.Empty(t, s.Order)
	assert.Empty(t, s.SyncLog)
	assert.Empty(t, s.AsyncLog)
}

func TestObservers(t *testing.T) {
	var (
		obs   observers
		calls []string
	)
	unsubscribeA := obs.add(ObserverFunc(func(*Snapshot) { calls = append(calls, `a`) }))
	obs.add(ObserverFunc(func(*Snapshot) { calls = append(calls, `b`) }))

	obs.notify(&Snapshot{})
	unsubscribeA()
	obs.notify(&Snapshot{})

	assert.Equal(t, []string{`a`, `b`, `b`}, calls)
}
