package saveflow

import "sync"

// Signal is a lifecycle event delivered to editing sessions. Platform event
// wiring (visibility change, page hide, unload) lives outside the core and
// feeds signals in through a dispatcher.
type Signal int

const (
	// SignalUserSave is an explicit save request.
	SignalUserSave Signal = iota
	// SignalHidden means the surface hosting the editor lost visibility.
	SignalHidden
	// SignalTeardown means the hosting surface is going away; saves must use
	// the fire-and-forget path.
	SignalTeardown
)

// SignalHandler consumes lifecycle signals for one editing session.
type SignalHandler func(Signal)

// LifecycleDispatcher fans lifecycle signals out to registered editing
// sessions, keyed by entity so targeted signals reach only the session that
// owns the entity.
type LifecycleDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]map[int64]SignalHandler
	nextID   int64
}

// NewLifecycleDispatcher returns an empty dispatcher.
func NewLifecycleDispatcher() *LifecycleDispatcher {
	return &LifecycleDispatcher{handlers: make(map[string]map[int64]SignalHandler)}
}

// Subscribe registers a handler for one entity's signals and returns its
// cancel function. Cancel must run before the session is torn down.
func (d *LifecycleDispatcher) Subscribe(entityID string, handler SignalHandler) func() {
	if entityID == "" || handler == nil {
		return func() {}
	}
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if _, ok := d.handlers[entityID]; !ok {
		d.handlers[entityID] = make(map[int64]SignalHandler)
	}
	d.handlers[entityID][id] = handler
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if handlers := d.handlers[entityID]; handlers != nil {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(d.handlers, entityID)
			}
		}
		d.mu.Unlock()
	}
}

// Publish delivers a signal to the sessions editing one entity.
func (d *LifecycleDispatcher) Publish(entityID string, signal Signal) {
	d.mu.RLock()
	handlers := make([]SignalHandler, 0, len(d.handlers[entityID]))
	for _, handler := range d.handlers[entityID] {
		handlers = append(handlers, handler)
	}
	d.mu.RUnlock()
	for _, handler := range handlers {
		handler(signal)
	}
}

// Broadcast delivers a page-level signal to every registered session.
func (d *LifecycleDispatcher) Broadcast(signal Signal) {
	d.mu.RLock()
	handlers := make([]SignalHandler, 0)
	for _, byID := range d.handlers {
		for _, handler := range byID {
			handlers = append(handlers, handler)
		}
	}
	d.mu.RUnlock()
	for _, handler := range handlers {
		handler(signal)
	}
}
