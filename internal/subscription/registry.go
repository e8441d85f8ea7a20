// Package subscription fans live results out to every listener of an owner key.
//
// A Registry maps owner keys to broadcast Channels. Listeners attach when a
// client connection opens and detach when it closes. Delivery is present-tense
// only: a listener sees results pushed after it attached, never earlier ones.
package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultListenerBuffer is how many undelivered results a listener may queue.
const DefaultListenerBuffer = 16

// Listener receives every result broadcast on its channel after it attached.
type Listener struct {
	id       string
	ownerKey string
	ch       chan json.RawMessage
}

// ID identifies the listener in logs.
func (l *Listener) ID() string { return l.id }

// OwnerKey returns the owner key the listener is attached to.
func (l *Listener) OwnerKey() string { return l.ownerKey }

// C is closed when the listener is detached.
func (l *Listener) C() <-chan json.RawMessage { return l.ch }

// Channel is the broadcast primitive for one owner key.
type Channel struct {
	ownerKey string
	buffer   int

	// mu protects listeners. Broadcast holds the read lock while sending, so
	// detach (write lock) never closes a channel mid-send.
	mu        sync.RWMutex
	listeners map[string]*Listener
}

func newChannel(ownerKey string, buffer int) *Channel {
	return &Channel{
		ownerKey:  ownerKey,
		buffer:    buffer,
		listeners: make(map[string]*Listener),
	}
}

// OwnerKey returns the key the channel belongs to.
func (c *Channel) OwnerKey() string { return c.ownerKey }

// Listeners returns the number of attached listeners.
func (c *Channel) Listeners() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

func (c *Channel) attach() *Listener {
	l := &Listener{
		id:       uuid.NewString(),
		ownerKey: c.ownerKey,
		ch:       make(chan json.RawMessage, c.buffer),
	}
	c.mu.Lock()
	c.listeners[l.id] = l
	c.mu.Unlock()
	return l
}

func (c *Channel) detach(l *Listener) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[l.id]; !ok {
		return false
	}
	delete(c.listeners, l.id)
	close(l.ch)
	return true
}

// Broadcast pushes payload to every attached listener and returns how many
// received it. A listener whose buffer is full misses this payload; the others
// are unaffected.
func (c *Channel) Broadcast(payload json.RawMessage) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	delivered := 0
	for _, l := range c.listeners {
		select {
		case l.ch <- payload:
			delivered++
		default:
			slog.Warn("Listener buffer full, dropping live result", "ownerKey", c.ownerKey, "listenerID", l.id)
		}
	}
	return delivered
}

// Registry maps owner keys to broadcast channels.
// Channels are created lazily and, unless Prune runs, never removed.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
	buffer   int
}

// NewRegistry returns an empty registry. buffer <= 0 selects DefaultListenerBuffer.
func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	return &Registry{
		channels: make(map[string]*Channel),
		buffer:   buffer,
	}
}

// GetOrCreateChannel returns the channel of ownerKey, creating it on first use.
func (r *Registry) GetOrCreateChannel(ownerKey string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(ownerKey)
}

func (r *Registry) getOrCreateLocked(ownerKey string) *Channel {
	c, ok := r.channels[ownerKey]
	if !ok {
		c = newChannel(ownerKey, r.buffer)
		r.channels[ownerKey] = c
	}
	return c
}

// Lookup returns the channel of ownerKey if one exists.
func (r *Registry) Lookup(ownerKey string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[ownerKey]
	return c, ok
}

// Attach adds a listener to the channel of ownerKey, creating the channel if needed.
func (r *Registry) Attach(ownerKey string) *Listener {
	// The registry lock is held across attach so Prune cannot drop the channel
	// between lookup and attach.
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.getOrCreateLocked(ownerKey).attach()
	slog.Debug("Listener attached", "ownerKey", ownerKey, "listenerID", l.id)
	return l
}

// Detach removes l from its channel and closes l.C(). The channel itself stays.
// Detaching twice is a no-op.
func (r *Registry) Detach(l *Listener) {
	if l == nil {
		return
	}
	c, ok := r.Lookup(l.ownerKey)
	if !ok {
		return
	}
	if c.detach(l) {
		slog.Debug("Listener detached", "ownerKey", l.ownerKey, "listenerID", l.id)
	}
}

// Publish broadcasts payload to the listeners of ownerKey, if a channel exists.
// It returns the number of listeners that received it.
func (r *Registry) Publish(ownerKey string, payload json.RawMessage) int {
	c, ok := r.Lookup(ownerKey)
	if !ok {
		return 0
	}
	return c.Broadcast(payload)
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Prune removes channels without listeners and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, c := range r.channels {
		if c.Listeners() == 0 {
			delete(r.channels, key)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Prune every interval until ctx ends.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				slog.Debug("Pruned idle result channels", "count", n)
			}
		}
	}
}
