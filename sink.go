package loopviz

import (
	"maps"
)

// LogEntry records a single completion, in firing order.
type LogEntry struct {
	InstanceID string `json:"instanceId"`
	Label      string `json:"label"`
	Rank       int    `json:"rank"`
	Kind       Kind   `json:"kind"`
}

// Message is the log line, e.g. "Synchronous event executed".
func (x LogEntry) Message() string {
	return x.Label + ` executed`
}

// executionSink accumulates the logs and execution order of a single run.
type executionSink struct {
	order    map[string]int
	syncLog  []LogEntry
	asyncLog []LogEntry
	lastRank int
}

func (x *executionSink) reset() {
	x.order = make(map[string]int)
	x.syncLog = nil
	x.asyncLog = nil
	x.lastRank = 0
}

// record assigns the next rank to v, and appends to the appropriate log.
// The caller guarantees each instance is recorded at most once per run.
func (x *executionSink) record(v Instance) LogEntry {
	if x.order == nil {
		x.order = make(map[string]int)
	}
	x.lastRank++
	x.order[v.ID] = x.lastRank
	entry := LogEntry{
		InstanceID: v.ID,
		Kind:       v.Kind,
		Label:      v.Label,
		Rank:       x.lastRank,
	}
	if v.Kind.Async() {
		x.asyncLog = append(x.asyncLog, entry)
	} else {
		x.syncLog = append(x.syncLog, entry)
	}
	return entry
}

func (x *executionSink) copyTo(s *Snapshot) {
	s.Order = maps.Clone(x.order)
	if s.Order == nil {
		s.Order = map[string]int{}
	}
	s.SyncLog = append(make([]LogEntry, 0, len(x.syncLog)), x.syncLog...)
	s.AsyncLog = append(make([]LogEntry, 0, len(x.asyncLog)), x.asyncLog...)
}
