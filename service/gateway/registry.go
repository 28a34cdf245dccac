package gateway

import (
	"sync"
	"time"

	"DPanel/tools/ids"
)

// Registry is the in-memory store of every live connection on this
// gateway instance. It is the sole authority on which sockets exist;
// every mutation of a Conn funnels through here under one lock.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Conn
	clock func() time.Time // injectable for tests; nil => time.Now
}

func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		byID:  make(map[string]*Conn),
		clock: clock,
	}
}

// Add stores an unauthenticated record for a freshly accepted socket.
func (r *Registry) Add(t Transport) *Conn {
	now := r.clock()
	c := &Conn{
		ID:        ids.GenerateString(),
		Transport: t,
		Guilds:    make(map[string]struct{}),
		LastSeen:  now,
	}
	r.mu.Lock()
	r.byID[c.ID] = c
	r.mu.Unlock()
	return c
}

// Remove is idempotent; removing an absent connection is a no-op.
func (r *Registry) Remove(id string) {
	r.drop(id)
}

// drop removes and returns the record, nil when absent.
func (r *Registry) drop(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	return c
}

func (r *Registry) Get(id string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByGuild returns every connection subscribed to the guild. Full scan:
// fine for hundreds to low thousands of sockets per process; add a
// guild-keyed secondary index once scan cost shows up in profiles.
func (r *Registry) ByGuild(guildID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conn
	for _, c := range r.byID {
		if _, ok := c.Guilds[guildID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) ByUser(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conn
	for _, c := range r.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Authenticate promotes the connection. Re-invocation with the same
// user is accepted; the protocol handler prevents a different user.
func (r *Registry) Authenticate(id, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.Authenticated = true
	c.UserID = userID
	return true
}

func (r *Registry) IsAuthenticated(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return ok && c.Authenticated
}

func (r *Registry) UserOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return ""
	}
	return c.UserID
}

// Subscribe adds the guild to the connection's set. Rejected while
// unauthenticated; unauthenticated subscribe attempts never mutate
// state.
func (r *Registry) Subscribe(id, guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || !c.Authenticated {
		return false
	}
	c.Guilds[guildID] = struct{}{}
	return true
}

// Unsubscribe is idempotent: removing a guild that was never
// subscribed still reports success. False only when the connection is
// absent.
func (r *Registry) Unsubscribe(id, guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(c.Guilds, guildID)
	return true
}

func (r *Registry) HasGuild(id, guildID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return false
	}
	_, sub := c.Guilds[guildID]
	return sub
}

// Touch stamps liveness. Called on connect and on inbound ping/pong.
func (r *Registry) Touch(id string) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		c.LastSeen = now
	}
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// splitIdle partitions connections for one liveness sweep.
func (r *Registry) splitIdle(now time.Time, timeout time.Duration) (expired, alive []*Conn) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if now.Sub(c.LastSeen) > timeout {
			expired = append(expired, c)
		} else {
			alive = append(alive, c)
		}
	}
	return expired, alive
}
