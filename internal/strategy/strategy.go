// Package strategy implements the personality-driven pricing, buying, and
// action-selection decisions shared by the marketplace view and the trade
// engine. Grounded on original_source/src/user/strategy.py.
package strategy

import (
	"math/rand"

	"github.com/zap-empire/zapempire/internal/personality"
)

// CategoryBasePrices are the base sats price per program category.
var CategoryBasePrices = map[string]float64{
	"math":            150,
	"text":            200,
	"data_structures": 350,
	"crypto":          275,
	"utilities":       350,
	"generators":      200,
	"converters":      175,
	"validators":      250,
}

// ComplexityFactors scale a program's base price by its complexity tier.
var ComplexityFactors = map[string]float64{
	"simple":  0.5,
	"medium":  1.0,
	"complex": 2.0,
}

// CreationRateProbs maps a personality's creation_rate label to a per-tick
// creation probability.
var CreationRateProbs = map[string]float64{
	"low":      0.2,
	"medium":   0.4,
	"high":     0.6,
	"adaptive": 0.4,
}

// Engine evaluates buy/sell/pricing/action decisions for one agent.
type Engine struct {
	Personality   personality.Personality
	InitialBudget float64
	rng           *rand.Rand
}

// New constructs a strategy engine for the given personality and starting
// balance (used to scale creation probability by balance_factor).
func New(p personality.Personality, initialBudget float64) *Engine {
	return &Engine{Personality: p, InitialBudget: initialBudget, rng: rand.New(rand.NewSource(rand.Int63()))}
}

// GetBudgetLimit returns the maximum an agent will spend on a single
// purchase given its current balance.
func (e *Engine) GetBudgetLimit(balance float64) float64 {
	return balance * e.Personality.SpendingRatio
}

// CalculateProgramPrice returns a listing price with ±10% jitter around the
// category/complexity base price, scaled by the personality's multiplier.
func (e *Engine) CalculateProgramPrice(category, complexity string) float64 {
	base := CategoryBasePrices[category]
	factor := ComplexityFactors[complexity]
	jitter := 0.9 + e.rng.Float64()*0.2
	return base * factor * e.Personality.PriceMultiplier * jitter
}

// CalculateOfferPrice returns the sats amount to offer for a listed price,
// as a personality-dependent fraction of the listed price, capped at the
// agent's budget limit.
func (e *Engine) CalculateOfferPrice(listedPrice, balance float64) float64 {
	var low, high float64
	switch e.Personality.Archetype {
	case personality.Aggressive:
		low, high = 0.80, 0.95
	case personality.Conservative:
		low, high = 0.90, 1.00
	default:
		low, high = 0.85, 1.00
	}
	frac := low + e.rng.Float64()*(high-low)
	offer := listedPrice * frac

	budget := e.GetBudgetLimit(balance)
	if offer > budget {
		offer = budget
	}
	return offer
}

// ShouldBuy scores a listing by the shared buy predicate from
// SPEC_FULL.md §4.3 / original_source/src/user/strategy.py::should_buy.
func (e *Engine) ShouldBuy(price, trust float64, ownsCategory bool, ownedCategoryCount int, isFocusCategory bool, estimatedValue float64, balance float64) bool {
	if price <= 0 {
		return false
	}
	if price > e.GetBudgetLimit(balance) {
		return false
	}
	if trust < e.Personality.TrustMinimum {
		return false
	}

	score := 0.0
	if !ownsCategory {
		score += 0.4
	}
	if ownedCategoryCount < 5 {
		score += 0.2
	}
	if isFocusCategory {
		score += 0.2
	}
	if price <= estimatedValue {
		score += 0.2
	}
	score += e.rng.Float64() * 0.1

	return score >= 0.4
}

// EstimateValue returns the trust-weighted value estimate for a listing's
// stated price, matching strategy.py::_estimate_value.
func (e *Engine) EstimateValue(listedPrice, trust float64) float64 {
	trustFactor := 0.5 + trust*0.5
	return listedPrice * trustFactor
}

// ShouldAcceptOffer applies the seller-side accept rule from
// SPEC_FULL.md §4.4: accept iff buyer trust clears trust_minimum and the
// offer clears listedPrice * accept_threshold.
func (e *Engine) ShouldAcceptOffer(offerSats, listedPrice, buyerTrust float64) bool {
	if buyerTrust < e.Personality.TrustMinimum {
		return false
	}
	return offerSats >= listedPrice*e.Personality.AcceptThreshold
}

// GetCounterOffer returns a counter-offer amount if the rejected offer was
// at least half the listed price, or 0 (no counter) otherwise.
func (e *Engine) GetCounterOffer(offerSats, listedPrice float64) float64 {
	if offerSats < listedPrice*0.5 {
		return 0
	}
	return listedPrice * e.Personality.AcceptThreshold
}

// Action is one of the four tick actions an agent may select.
type Action string

const (
	ActionCreate       Action = "create"
	ActionBuy          Action = "buy"
	ActionAdjustPrices Action = "adjust_prices"
	ActionIdle         Action = "idle"
)

// SelectAction implements the priority ordering from SPEC_FULL.md §4.5:
// too many active trades -> idle; else a chance to buy; else a
// balance/specialist-scaled chance to create; else a chance to adjust
// prices; else idle.
func (e *Engine) SelectAction(activeTrades int, balance float64, hasListings bool, hasOwnListings bool) Action {
	if activeTrades >= 3 {
		return ActionIdle
	}

	if hasListings && balance > 500 && e.rng.Float64() < 0.3 {
		return ActionBuy
	}

	balanceFactor := 1.0
	if e.InitialBudget > 0 {
		if balance < 0.2*e.InitialBudget {
			balanceFactor = 1.5
		} else if balance > 1.5*e.InitialBudget {
			balanceFactor = 0.7
		}
	}

	specialistBonus := 1.0
	if e.Personality.Archetype == personality.Specialist && e.Personality.CategoryFocus != "" {
		specialistBonus = 1.2
	}

	creationProb := CreationRateProbs[e.Personality.CreationRate] * balanceFactor * specialistBonus
	if e.rng.Float64() < creationProb {
		return ActionCreate
	}

	if hasOwnListings && e.rng.Float64() < 0.15 {
		return ActionAdjustPrices
	}

	return ActionIdle
}

// SelectCategory picks a program category to produce, favoring a
// specialist's focus category 70% of the time.
func (e *Engine) SelectCategory(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	if e.Personality.CategoryFocus != "" && e.rng.Float64() < 0.7 {
		return e.Personality.CategoryFocus
	}
	return categories[e.rng.Intn(len(categories))]
}
