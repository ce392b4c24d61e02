package nostr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	ev, err := NewEvent(kp, time.Now().Unix(), KindChat, []Tag{{"p", "deadbeef"}}, "hello")
	require.NoError(t, err)
	require.NoError(t, ev.Verify())
}

func TestEventIDChangesWithContent(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	now := time.Now().Unix()
	a, err := NewEvent(kp, now, KindChat, nil, "hello")
	require.NoError(t, err)
	b, err := NewEvent(kp, now, KindChat, nil, "goodbye")
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
}

func TestEventVerifyRejectsTamperedContent(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	ev, err := NewEvent(kp, time.Now().Unix(), KindChat, nil, "hello")
	require.NoError(t, err)

	ev.Content = "tampered"
	require.Error(t, ev.Verify())
}

func TestFirstTagAndTagValue(t *testing.T) {
	ev := &Event{Tags: []Tag{{"e", "abc123", "", "buyer"}, {"p", "deadbeef"}}}
	require.Equal(t, "abc123", ev.TagValue("e"))
	require.Equal(t, "deadbeef", ev.TagValue("p"))
	require.Nil(t, ev.FirstTag("missing"))
}
