package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdleBalanceBands(t *testing.T) {
	g := New("Botan")

	require.Contains(t, balanceLow, g.Idle(100))
	require.Contains(t, balanceHigh, g.Idle(20000))
	require.Contains(t, idleMessages, g.Idle(5000))
}

func TestGreetingIncludesName(t *testing.T) {
	g := New("Botan")
	require.Contains(t, g.Greeting(), "Botan")
}

func TestListingIncludesNameAndPrice(t *testing.T) {
	g := New("Botan")
	line := g.Listing("fizzbuzz", 150)
	require.Contains(t, line, "fizzbuzz")
	require.Contains(t, line, "150")
}
