package nostr

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkSeenDeduplicates(t *testing.T) {
	c := NewClient("ws://example.invalid", nil)

	require.False(t, c.markSeen("a"))
	require.True(t, c.markSeen("a"))
	require.False(t, c.markSeen("b"))
}

func TestMarkSeenTrimsAtCap(t *testing.T) {
	c := NewClient("ws://example.invalid", nil)

	for i := 0; i < seenIDCap+10; i++ {
		c.markSeen(idFor(i))
	}

	// The oldest half should have been evicted; the most recent id is still present.
	require.True(t, c.markSeen(idFor(seenIDCap+9)))
	require.LessOrEqual(t, len(c.seenOrd), seenIDCap)
}

func idFor(i int) string {
	return "id-" + strconv.Itoa(i)
}

func TestNextDelayDoublesAndCaps(t *testing.T) {
	d := reconnectInitialDelay
	for i := 0; i < 10; i++ {
		d = nextDelay(d)
	}
	require.Equal(t, reconnectMaxDelay, d)
}

func TestSubscribeTracksOrder(t *testing.T) {
	c := NewClient("ws://example.invalid", nil)

	// Not connected, so the REQ send fails, but the subscription is still
	// registered for re-send on (re)connect.
	_ = c.Subscribe("a", Filter{Kinds: []int{1}})
	_ = c.Subscribe("b", Filter{Kinds: []int{0}})
	_ = c.Subscribe("a", Filter{Kinds: []int{1, 0}})

	require.Equal(t, []string{"a", "b"}, c.subOrd)
}
