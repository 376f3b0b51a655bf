package loopviz

import (
	"sort"
	"sync"
)

type (
	// Banners are the user-visible error messages. An empty string means the
	// banner is not shown.
	Banners struct {
		EventLimit          string `json:"eventLimit,omitempty"`
		EmptyExecutionList  string `json:"emptyExecutionList,omitempty"`
		CantAddWhileRunning string `json:"cantAddWhileRunning,omitempty"`
	}

	// Snapshot is an immutable view of the visualizer state. Snapshots must not
	// be modified by the receiver.
	Snapshot struct {
		// Order maps instance id to execution rank, for the current run.
		Order map[string]int `json:"order"`
		// RunID identifies the current (or last) run, empty before any run.
		RunID    string     `json:"runId,omitempty"`
		Items    []Instance `json:"items"`
		SyncLog  []LogEntry `json:"syncLog"`
		AsyncLog []LogEntry `json:"asyncLog"`
		Banners  Banners    `json:"banners"`
		// Version increases with every published snapshot.
		Version   uint64 `json:"version"`
		RunCount  int    `json:"runCount"`
		Capacity  int    `json:"capacity"`
		Executing bool   `json:"executing"`
	}

	// Observer receives every published snapshot, on the loop goroutine.
	// Implementations must not block, or call back into the Visualizer.
	Observer interface {
		OnSnapshot(s *Snapshot)
	}

	// ObserverFunc implements Observer.
	ObserverFunc func(s *Snapshot)

	observers struct {
		m      map[uint64]Observer
		mu     sync.Mutex
		nextID uint64
	}
)

var _ Observer = ObserverFunc(nil)

func (x ObserverFunc) OnSnapshot(s *Snapshot) { x(s) }

// Any reports whether any banner is set.
func (x Banners) Any() bool {
	return x.EventLimit != `` || x.EmptyExecutionList != `` || x.CantAddWhileRunning != ``
}

// Rank returns the execution rank of the given instance, in the current run.
func (x *Snapshot) Rank(id string) (int, bool) {
	rank, ok := x.Order[id]
	return rank, ok
}

// FiringOrder returns the ids of every instance that has fired, ordered by
// rank. Removed instances are included.
func (x *Snapshot) FiringOrder() []string {
	ids := make([]string, 0, len(x.Order))
	for id := range x.Order {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return x.Order[ids[i]] < x.Order[ids[j]] })
	return ids
}

func (x *observers) add(o Observer) func() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.m == nil {
		x.m = make(map[uint64]Observer)
	}
	x.nextID++
	id := x.nextID
	x.m[id] = o
	return func() {
		x.mu.Lock()
		delete(x.m, id)
		x.mu.Unlock()
	}
}

func (x *observers) notify(s *Snapshot) {
	x.mu.Lock()
	ids := make([]uint64, 0, len(x.m))
	for id := range x.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	list := make([]Observer, len(ids))
	for i, id := range ids {
		list[i] = x.m[id]
	}
	x.mu.Unlock()
	for _, o := range list {
		o.OnSnapshot(s)
	}
}
