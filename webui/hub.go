package webui

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/internal/drain"
)

// clientBuffer is the number of snapshots buffered per client. The oldest
// are discarded when a client falls behind, since each supersedes the last.
const clientBuffer = 4

type (
	// hub fans snapshots out to websocket clients. OnSnapshot is called on
	// the loop goroutine, and never blocks.
	hub struct {
		logger  *logiface.Logger[logiface.Event]
		clients map[*client]struct{}
		mu      sync.Mutex
		closed  bool
	}

	client struct {
		send chan *loopviz.Snapshot
		// dropped counts discarded snapshots, guarded by hub.mu
		dropped int
	}
)

var _ loopviz.Observer = (*hub)(nil)

func newHub(logger *logiface.Logger[logiface.Event]) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) OnSnapshot(s *loopviz.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.offer(c, s)
	}
}

// offer must be called with mu held.
func (h *hub) offer(c *client, s *loopviz.Snapshot) {
	if _, dropped := drain.Offer(c.send, s); dropped {
		c.dropped++
	}
}

// register adds a client, primed with the current snapshot. Returns nil if
// the hub is closed.
func (h *hub) register(initial *loopviz.Snapshot) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &client{send: make(chan *loopviz.Snapshot, clientBuffer)}
	h.clients[c] = struct{}{}
	if initial != nil {
		h.offer(c, initial)
	}
	h.logger.Debug().
		Int(`clients`, len(h.clients)).
		Log(`webui: client connected`)
	return c
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug().
		Int(`clients`, len(h.clients)).
		Int(`dropped`, c.dropped).
		Log(`webui: client disconnected`)
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close disconnects every client. Subsequent registrations fail.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
