package wire

import (
	"sync"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
)

// eventRouter hands stack events to the registered handler. Handlers may
// call back into the stack, including Disconnect.
type eventRouter struct {
	mu      sync.Mutex
	handler push.EventHandler
}

func newEventRouter() *eventRouter {
	return &eventRouter{}
}

func (r *eventRouter) set(h push.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *eventRouter) get() push.EventHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

// deliver must not be called with the stack lock held
func (r *eventRouter) deliver(events ...push.Event) {
	if len(events) == 0 {
		return
	}

	h := r.get()
	if h == nil {
		for _, ev := range events {
			logger.Trace("wire", "no handler for %s on %s", ev.Kind, ev.Handle)
		}
		return
	}

	for _, ev := range events {
		logger.Trace(linkPrefix(ev.Handle), "event %s", ev.Kind)
		h.HandleEvent(ev)
	}
}
