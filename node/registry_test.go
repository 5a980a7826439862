//go:build linux
// +build linux

package node

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, capacity int) *ConnectionRegistry {
	t.Helper()
	r, err := NewConnectionRegistry(capacity, LIFO, 0)
	require.NoError(t, err)
	return r
}

func TestRegistryCapacityBelowListenerToken(t *testing.T) {
	_, err := NewConnectionRegistry(int(ListenerToken), LIFO, 0)
	assert.ErrorIs(t, err, ErrTooManyClients)

	r, err := NewConnectionRegistry(int(ListenerToken)-1, LIFO, 0)
	require.NoError(t, err)
	assert.Equal(t, int(ListenerToken)-1, r.Cap())
}

func TestRegistryAllocateAndGet(t *testing.T) {
	r := newTestRegistry(t, 4)

	token, err := r.Allocate(&fakeStream{}, "a")
	require.NoError(t, err)
	assert.Equal(t, Token(0), token)

	c, err := r.Get(token)
	require.NoError(t, err)
	assert.Equal(t, token, c.Token())
	assert.Equal(t, "a", c.RemoteAddr())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryExhaustion(t *testing.T) {
	r := newTestRegistry(t, 2)
	a, err := r.Allocate(&fakeStream{}, "a")
	require.NoError(t, err)
	b, err := r.Allocate(&fakeStream{}, "b")
	require.NoError(t, err)

	_, err = r.Allocate(&fakeStream{}, "c")
	assert.ErrorIs(t, err, ErrRegistryFull)

	// existing slots are untouched
	ca, err := r.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "a", ca.RemoteAddr())
	cb, err := r.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "b", cb.RemoteAddr())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, 2)
	token, err := r.Allocate(&fakeStream{}, "a")
	require.NoError(t, err)

	c := r.Remove(token)
	require.NotNil(t, c)
	assert.Nil(t, r.Remove(token))
	assert.Nil(t, r.Remove(Token(1)))
	assert.Nil(t, r.Remove(ListenerToken))
	assert.Zero(t, r.Len())

	_, err = r.Get(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegistryReusesFreedToken(t *testing.T) {
	r := newTestRegistry(t, 1)
	token, err := r.Allocate(&fakeStream{}, "a")
	require.NoError(t, err)
	r.Remove(token)

	again, err := r.Allocate(&fakeStream{}, "b")
	require.NoError(t, err)
	assert.Equal(t, token, again)
}

func TestRegistryTokenUniqueness(t *testing.T) {
	const capacity = 16
	r := newTestRegistry(t, capacity)
	rng := rand.New(rand.NewSource(1))
	live := map[Token]*Connection{}

	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			token, err := r.Allocate(&fakeStream{}, "")
			if len(live) == capacity {
				require.ErrorIs(t, err, ErrRegistryFull)
				continue
			}
			require.NoError(t, err)
			require.NotContains(t, live, token)
			require.Less(t, token, ListenerToken)
			c, err := r.Get(token)
			require.NoError(t, err)
			live[token] = c
		} else {
			token := Token(rng.Intn(capacity))
			removed := r.Remove(token)
			if c, ok := live[token]; ok {
				require.Same(t, c, removed)
				delete(live, token)
			} else {
				require.Nil(t, removed)
			}
		}

		require.Equal(t, len(live), r.Len())
		for token, c := range live {
			got, err := r.Get(token)
			require.NoError(t, err)
			require.Same(t, c, got)
		}
	}
}

func TestRegistrySendToAndBroadcast(t *testing.T) {
	r := newTestRegistry(t, 3)
	a, _ := r.Allocate(&fakeStream{}, "a")
	b, _ := r.Allocate(&fakeStream{}, "b")

	require.NoError(t, r.SendTo(a, []byte("x")))
	assert.ErrorIs(t, r.SendTo(Token(2), []byte("x")), ErrInvalidToken)

	assert.Equal(t, 2, r.Broadcast([]byte("y")))

	ca, _ := r.Get(a)
	cb, _ := r.Get(b)
	assert.Equal(t, 2, ca.pending())
	assert.Equal(t, 1, cb.pending())
	assert.ElementsMatch(t, []Token{a, b}, r.tokens())
}

func TestRegistryWithConnIsExclusive(t *testing.T) {
	r := newTestRegistry(t, 1)
	token, _ := r.Allocate(&fakeStream{}, "a")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.WithConn(token, func(c *Connection) error {
					mu.Lock()
					inside++
					if inside > 1 {
						overlap = true
					}
					mu.Unlock()

					c.readNext++

					mu.Lock()
					inside--
					mu.Unlock()
					return nil
				})
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
	c, _ := r.Get(token)
	assert.Equal(t, 1600, c.readNext)

	assert.ErrorIs(t, r.WithConn(Token(5), func(*Connection) error { return nil }), ErrInvalidToken)
}
