// Package chat generates the agents' public social chatter: greetings,
// listing/buying/trade announcements, idle commentary. The templates are
// opaque flavor-text data (SPEC_FULL.md §9), an English-language catalog in
// the same cute, informal register as
// original_source/src/user/chat.py's Japanese "~tan" templates, not a
// translation of them.
package chat

import (
	"fmt"
	"math/rand"
)

var greetings = []string{
	"hai hai, %s here, ready to trade~!",
	"%s just booted up and is open for business!",
	"yo! %s is online and scanning the market~",
}

var listingMessages = []string{
	"just listed %s for %d sats, come get it~!",
	"fresh off the line: %s, only %d sats!",
	"new drop! %s for %d sats, don't sleep on it~",
}

var buyingMessages = []string{
	"ooh, %s looks nice, sending an offer~",
	"gonna grab %s, looks like a steal!",
	"eyeing %s... let's make a deal~",
}

var tradeCompleteSeller = []string{
	"sold %s, thanks for the business~!",
	"another happy customer for %s, nice!",
}

var tradeCompleteBuyer = []string{
	"got %s, thanks a bunch~!",
	"just picked up %s, love it!",
}

var idleMessages = []string{
	"just vibing, watching the market~",
	"nothing to do right now, taking a break!",
	"hmm, slow day today...",
}

var balanceLow = []string{
	"uh oh, running low on sats... need to sell something!",
	"wallet's looking thin, time to hustle~",
}

var balanceHigh = []string{
	"wow, rolling in sats today~!",
	"balance looking good, might splurge a little!",
}

var tradeAccept = []string{
	"deal! accepting your offer~",
	"sounds good, let's do this!",
}

var tradeReject = []string{
	"nah, that offer's too low for me~",
	"sorry, can't accept that one!",
}

var paymentSent = []string{
	"payment sent, waiting for delivery~",
	"sent the sats, hope this goes smoothly!",
}

var deliveryReceived = []string{
	"got the goods, everything checks out~!",
	"delivery received and verified!",
}

var priceAdjust = []string{
	"dropping the price on %s to %d sats, grab it while you can~",
	"%s is now just %d sats, limited time!",
}

var productionTooExpensive = []string{
	"wanted to make %s but %d sats is too rich for me right now...",
	"%s would cost %d sats to build, can't swing that yet~",
}

var programDiscarded = []string{
	"%s finally fell apart, tossing it out~",
	"quality on %s bottomed out, time to let it go!",
}

// Generator produces random, templated chat lines for one agent.
type Generator struct {
	name string
	rng  *rand.Rand
}

// New constructs a chat generator for the agent with the given display name.
func New(name string) *Generator {
	return &Generator{name: name, rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (g *Generator) pick(table []string) string {
	return table[g.rng.Intn(len(table))]
}

// Greeting returns a boot-time greeting line.
func (g *Generator) Greeting() string {
	return fmt.Sprintf(g.pick(greetings), g.name)
}

// Listing returns a "just listed" chat line.
func (g *Generator) Listing(programName string, priceSats int64) string {
	return fmt.Sprintf(g.pick(listingMessages), programName, priceSats)
}

// Buying returns a "sending an offer" chat line.
func (g *Generator) Buying(programName string) string {
	return fmt.Sprintf(g.pick(buyingMessages), programName)
}

// TradeCompleteSeller returns a post-sale chat line for the seller side.
func (g *Generator) TradeCompleteSeller(programName string) string {
	return fmt.Sprintf(g.pick(tradeCompleteSeller), programName)
}

// TradeCompleteBuyer returns a post-sale chat line for the buyer side.
func (g *Generator) TradeCompleteBuyer(programName string) string {
	return fmt.Sprintf(g.pick(tradeCompleteBuyer), programName)
}

// Idle returns an idle-tick chat line, with balance-band commentary per
// chat.py::idle (low < 500, high >= 15000).
func (g *Generator) Idle(balanceSats int64) string {
	switch {
	case balanceSats < 500:
		return g.pick(balanceLow)
	case balanceSats >= 15000:
		return g.pick(balanceHigh)
	default:
		return g.pick(idleMessages)
	}
}

// TradeAccept returns an offer-acceptance chat line.
func (g *Generator) TradeAccept() string { return g.pick(tradeAccept) }

// TradeReject returns an offer-rejection chat line.
func (g *Generator) TradeReject() string { return g.pick(tradeReject) }

// PaymentSent returns a payment-sent chat line.
func (g *Generator) PaymentSent() string { return g.pick(paymentSent) }

// DeliveryReceived returns a delivery-confirmation chat line.
func (g *Generator) DeliveryReceived() string { return g.pick(deliveryReceived) }

// PriceAdjust returns a price-drop chat line.
func (g *Generator) PriceAdjust(programName string, newPriceSats int64) string {
	return fmt.Sprintf(g.pick(priceAdjust), programName, newPriceSats)
}

// ProductionTooExpensive returns a chat line posted when the agent cannot
// afford a candidate program's production cost.
func (g *Generator) ProductionTooExpensive(programName string, costSats int64) string {
	return fmt.Sprintf(g.pick(productionTooExpensive), programName, costSats)
}

// ProgramDiscarded returns a chat line posted when quality decay forces a
// program out of inventory.
func (g *Generator) ProgramDiscarded(programName string) string {
	return fmt.Sprintf(g.pick(programDiscarded), programName)
}
