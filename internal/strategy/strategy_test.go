package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zap-empire/zapempire/internal/personality"
)

func conservative() personality.Personality {
	p, _, _ := personality.GetPersonality(0)
	return p
}

func TestShouldAcceptOfferThreshold(t *testing.T) {
	p := conservative()
	e := New(p, 1000)

	require.True(t, e.ShouldAcceptOffer(96, 100, 0.5))
	require.False(t, e.ShouldAcceptOffer(90, 100, 0.5))
}

func TestShouldAcceptOfferRejectsLowTrust(t *testing.T) {
	p := conservative()
	e := New(p, 1000)

	require.False(t, e.ShouldAcceptOffer(100, 100, 0.0))
}

func TestGetCounterOfferFloor(t *testing.T) {
	p := conservative()
	e := New(p, 1000)

	require.Equal(t, 0.0, e.GetCounterOffer(40, 100))
	require.Equal(t, 100*p.AcceptThreshold, e.GetCounterOffer(70, 100))
}

func TestSelectActionIdlesAtTradeLimit(t *testing.T) {
	p := conservative()
	e := New(p, 1000)

	require.Equal(t, ActionIdle, e.SelectAction(3, 1000, true, true))
	require.Equal(t, ActionIdle, e.SelectAction(5, 1000, true, true))
}

func TestEstimateValueScalesWithTrust(t *testing.T) {
	p := conservative()
	e := New(p, 1000)

	lowTrust := e.EstimateValue(100, 0.0)
	highTrust := e.EstimateValue(100, 1.0)
	require.Less(t, lowTrust, highTrust)
	require.Equal(t, 50.0, lowTrust)
	require.Equal(t, 100.0, highTrust)
}
