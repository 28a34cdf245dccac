package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry(nil)
	c := r.Add(newFakeTransport())
	require.NotEmpty(t, c.ID)
	require.Equal(t, 1, r.Size())
	require.Same(t, c, r.Get(c.ID))

	r.Remove(c.ID)
	assert.Equal(t, 0, r.Size())
	assert.Nil(t, r.Get(c.ID))

	// removing an absent connection is a no-op, not an error
	r.Remove(c.ID)
	r.Remove("never-existed")
	assert.Equal(t, 0, r.Size())
}

func TestRegistrySubscribeRequiresAuth(t *testing.T) {
	r := NewRegistry(nil)
	c := r.Add(newFakeTransport())

	require.False(t, r.Subscribe(c.ID, "G1"), "unauthenticated subscribe must fail")
	assert.Empty(t, c.Guilds, "rejected subscribe must not mutate state")

	require.True(t, r.Authenticate(c.ID, "U1"))
	require.True(t, r.Subscribe(c.ID, "G1"))
	assert.True(t, r.HasGuild(c.ID, "G1"))
	assert.Equal(t, "U1", r.UserOf(c.ID))
	assert.True(t, r.IsAuthenticated(c.ID))
}

func TestRegistryAuthenticateAbsent(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.Authenticate("nope", "U1"))
	assert.False(t, r.Subscribe("nope", "G1"))
	assert.False(t, r.Unsubscribe("nope", "G1"))
}

func TestRegistryUnsubscribeIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	c := r.Add(newFakeTransport())
	require.True(t, r.Authenticate(c.ID, "U1"))
	require.True(t, r.Subscribe(c.ID, "G1"))

	assert.True(t, r.Unsubscribe(c.ID, "G1"))
	assert.False(t, r.HasGuild(c.ID, "G1"))

	// never-subscribed guild still reports success and changes nothing
	assert.True(t, r.Unsubscribe(c.ID, "G9"))
	assert.Empty(t, c.Guilds)
}

func TestRegistryByGuild(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Add(newFakeTransport())
	b := r.Add(newFakeTransport())
	c := r.Add(newFakeTransport())
	for _, id := range []string{a.ID, b.ID, c.ID} {
		require.True(t, r.Authenticate(id, "U-"+id))
	}
	require.True(t, r.Subscribe(a.ID, "G1"))
	require.True(t, r.Subscribe(b.ID, "G1"))
	require.True(t, r.Subscribe(c.ID, "G2"))

	assert.Len(t, r.ByGuild("G1"), 2)
	assert.Len(t, r.ByGuild("G2"), 1)
	assert.Empty(t, r.ByGuild("G3"))
}

func TestRegistryByUser(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Add(newFakeTransport())
	b := r.Add(newFakeTransport())
	require.True(t, r.Authenticate(a.ID, "U1"))
	require.True(t, r.Authenticate(b.ID, "U1"))

	assert.Len(t, r.ByUser("U1"), 2)
	assert.Empty(t, r.ByUser("U2"))
}

func TestRegistryTouchAndSplitIdle(t *testing.T) {
	clock := newManualClock()
	r := NewRegistry(clock.Now)
	stale := r.Add(newFakeTransport())
	fresh := r.Add(newFakeTransport())

	clock.Advance(61 * time.Second)
	r.Touch(fresh.ID)

	expired, alive := r.splitIdle(clock.Now(), 60*time.Second)
	require.Len(t, expired, 1)
	require.Len(t, alive, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
	assert.Equal(t, fresh.ID, alive[0].ID)
}
