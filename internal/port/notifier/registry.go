package notifier

import (
	"slices"
	"sync"

	"github.com/Strob0t/echobox/internal/domain/channel"
)

// Registry maps channel types to senders. Each router owns its own registry
// so tests can build isolated routers with controlled sender sets.
type Registry struct {
	mu      sync.RWMutex
	senders map[channel.Type]Sender
}

// NewRegistry creates a registry pre-populated with the given senders.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[channel.Type]Sender, len(senders))}
	for _, s := range senders {
		r.Register(s.Type(), s)
	}
	return r
}

// Register makes sender available for typ. Registering the same type again
// replaces the previous sender.
func (r *Registry) Register(typ channel.Type, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[typ] = sender
}

// Unregister removes the sender for typ, if any.
func (r *Registry) Unregister(typ channel.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, typ)
}

// Lookup returns the sender for typ.
func (r *Registry) Lookup(typ channel.Type) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[typ]
	return s, ok
}

// Tester returns the test-call implementation for typ, if its sender has one.
func (r *Registry) Tester(typ channel.Type) (Tester, bool) {
	s, ok := r.Lookup(typ)
	if !ok {
		return nil, false
	}
	t, ok := s.(Tester)
	return t, ok
}

// Available returns the registered channel types in sorted order.
func (r *Registry) Available() []channel.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]channel.Type, 0, len(r.senders))
	for typ := range r.senders {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}
