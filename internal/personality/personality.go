// Package personality supplies the five trading archetypes and the fixed
// ten-agent roster described in SPEC_FULL.md §9.
package personality

// Archetype names one of the five personality presets.
type Archetype string

const (
	Conservative Archetype = "conservative"
	Aggressive   Archetype = "aggressive"
	Specialist   Archetype = "specialist"
	Generalist   Archetype = "generalist"
	Opportunist  Archetype = "opportunist"
)

// Personality is the full parameter set governing one agent's decisions.
type Personality struct {
	Archetype        Archetype
	PriceMultiplier  float64
	SpendingRatio    float64
	AcceptThreshold  float64
	TrustMinimum     float64
	CreationRate     string // low | medium | high | adaptive
	CategoryFocus    string // empty unless specialist/opportunist
	RiskTolerance    float64
}

// presets holds the per-archetype parameters, grounded on
// original_source/src/user/personality.py's PERSONALITIES table.
var presets = map[Archetype]Personality{
	Conservative: {
		Archetype: Conservative, PriceMultiplier: 1.1, SpendingRatio: 0.2,
		AcceptThreshold: 0.95, TrustMinimum: 0.4, CreationRate: "low", RiskTolerance: 0.2,
	},
	Aggressive: {
		Archetype: Aggressive, PriceMultiplier: 0.9, SpendingRatio: 0.5,
		AcceptThreshold: 0.80, TrustMinimum: 0.2, CreationRate: "high", RiskTolerance: 0.8,
	},
	Specialist: {
		Archetype: Specialist, PriceMultiplier: 1.2, SpendingRatio: 0.3,
		AcceptThreshold: 0.90, TrustMinimum: 0.3, CreationRate: "medium", RiskTolerance: 0.4,
	},
	Generalist: {
		Archetype: Generalist, PriceMultiplier: 1.0, SpendingRatio: 0.35,
		AcceptThreshold: 0.85, TrustMinimum: 0.3, CreationRate: "medium", RiskTolerance: 0.5,
	},
	Opportunist: {
		Archetype: Opportunist, PriceMultiplier: 0.95, SpendingRatio: 0.4,
		AcceptThreshold: 0.75, TrustMinimum: 0.25, CreationRate: "adaptive", RiskTolerance: 0.7,
	},
}

// AgentConfig is one roster entry: a fixed archetype and display name,
// optionally overridden with a category focus.
type AgentConfig struct {
	Index         int
	Name          string
	Archetype     Archetype
	CategoryFocus string
}

// roster is the fixed ten-agent lineup, grounded on
// original_source/src/user/personality.py's AGENT_CONFIG table. Display
// names are Latin-alphabet transliterations of the original's Japanese
// cute-speech names.
var roster = []AgentConfig{
	{0, "Botan", Conservative, ""},
	{1, "Wantan", Aggressive, ""},
	{2, "Mikatan", Specialist, "math"},
	{3, "Puritan", Generalist, ""},
	{4, "Kurotan", Opportunist, ""},
	{5, "Shirotan", Conservative, ""},
	{6, "Aotan", Aggressive, ""},
	{7, "Mochitan", Specialist, "crypto"},
	{8, "Pontan", Generalist, ""},
	{9, "Rintan", Opportunist, ""},
}

// ErrNoSuchAgent is returned by GetPersonality for an out-of-range index.
type ErrNoSuchAgent struct{ Index int }

func (e ErrNoSuchAgent) Error() string {
	return "personality: no roster entry for agent index"
}

// GetPersonality merges the roster entry's archetype preset with its
// per-agent overrides (category focus), matching
// original_source/src/user/personality.py's get_personality().
func GetPersonality(agentIndex int) (Personality, AgentConfig, error) {
	if agentIndex < 0 || agentIndex >= len(roster) {
		return Personality{}, AgentConfig{}, ErrNoSuchAgent{Index: agentIndex}
	}
	cfg := roster[agentIndex]
	p := presets[cfg.Archetype]
	if cfg.CategoryFocus != "" {
		p.CategoryFocus = cfg.CategoryFocus
	}
	return p, cfg, nil
}

// RosterSize is the fixed fleet size.
func RosterSize() int { return len(roster) }
