package reputation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTrustDefaultsToNeutral(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "reputation.json"))
	require.Equal(t, DefaultTrust, l.GetTrust("unknown-peer"))
}

func TestUpdateTrustClamps(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "reputation.json"))

	for i := 0; i < 20; i++ {
		l.UpdateTrust("peer", EventTradeSuccess, 0)
	}
	require.LessOrEqual(t, l.GetTrust("peer"), 1.0)

	for i := 0; i < 20; i++ {
		l.UpdateTrust("peer", EventDeliveryTimeout, 0)
	}
	require.GreaterOrEqual(t, l.GetTrust("peer"), 0.0)
}

func TestDecayConvergesToNeutral(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "reputation.json"))
	l.UpdateTrust("peer", EventTradeSuccess, 0)
	require.Greater(t, l.GetTrust("peer"), DefaultTrust)

	for i := 0; i < 1000; i++ {
		l.DecayAll()
	}
	require.InDelta(t, DefaultTrust, l.GetTrust("peer"), 0.001)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reputation.json")
	l := New(path)
	l.UpdateTrust("peer-a", EventTradeSuccess, 90)
	require.NoError(t, l.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, l.GetTrust("peer-a"), loaded.GetTrust("peer-a"), 1e-9)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultTrust, l.GetTrust("anyone"))
}
