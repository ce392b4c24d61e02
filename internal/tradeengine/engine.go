package tradeengine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zap-empire/zapempire/internal/nostr"
	"github.com/zap-empire/zapempire/internal/reputation"
	"github.com/zap-empire/zapempire/pkg/logging"
)

const (
	buyerTradeLimit  = 3
	sellerTradeLimit = 5
)

// Publisher sends a signed event to the relay.
type Publisher interface {
	Publish(ev *nostr.Event) error
}

// Wallet is the subset of the ecash black box the trade engine drives.
type Wallet interface {
	CreatePayment(amount int64) (string, error)
	ReceivePayment(token string) (int64, error)
}

// Reputation is the subset of the trust ledger the trade engine updates.
type Reputation interface {
	GetTrust(pubkey string) float64
	UpdateTrust(pubkey string, eventType reputation.EventType, amountSats int64)
}

// Strategy is the subset of the decision engine the seller side consults.
type Strategy interface {
	ShouldAcceptOffer(offerSats, listedPrice, buyerTrust float64) bool
	GetCounterOffer(offerSats, listedPrice float64) float64
}

// ListedProgram is the minimal shape the seller side needs to evaluate and
// fulfil an offer against one of the agent's own listings.
type ListedProgram struct {
	ID       string
	Name     string
	Category string
	Price    float64
	Source   string
}

// Inventory looks up the agent's own listed programs by listing id.
type Inventory interface {
	FindListing(listingID string) (ListedProgram, bool)
}

// Stats accumulates trade outcomes for status reporting and persistence.
type Stats struct {
	ProgramsBought  int
	ProgramsSold    int
	TotalSatsEarned int64
	TotalSatsSpent  int64
	TradesCompleted int
	TradesFailed    int
}

// Engine drives both buyer and seller sides of every trade this agent is
// party to.
type Engine struct {
	keypair   *nostr.Keypair
	publisher Publisher
	wallet    Wallet
	rep       Reputation
	strategy  Strategy
	inventory Inventory

	// PostChat, if set, is called with flavor text for public trade
	// announcements. Nil disables chat output.
	PostChat func(text string)
	// SaveReceivedProgram persists a bought program's source, keyed by
	// listing id, to the buyer's program directory.
	SaveReceivedProgram func(listingID, source string) error

	log *logging.Logger

	mu     sync.Mutex
	trades map[string]*Trade
	stats  Stats
}

// New constructs a trade engine for one agent.
func New(kp *nostr.Keypair, pub Publisher, wallet Wallet, rep Reputation, strat Strategy, inv Inventory, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	return &Engine{
		keypair:   kp,
		publisher: pub,
		wallet:    wallet,
		rep:       rep,
		strategy:  strat,
		inventory: inv,
		log:       log.Component("tradeengine"),
		trades:    make(map[string]*Trade),
	}
}

// Stats returns a snapshot of accumulated trade outcomes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ActiveCount returns the number of trades currently open for role, in any
// state other than COMPLETE or REJECTED.
func (e *Engine) ActiveCount(role Role) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeCountLocked(role)
}

func (e *Engine) activeCountLocked(role Role) int {
	n := 0
	for _, t := range e.trades {
		if t.Role == role && t.State != StateComplete && t.State != StateRejected {
			n++
		}
	}
	return n
}

// Snapshot returns every active trade's persisted form, for state.json.
func (e *Engine) Snapshot() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Snapshot, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, t.ToSnapshot())
	}
	return out
}

// Restore seeds the engine's trade table from a persisted snapshot.
func (e *Engine) Restore(snapshots []Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range snapshots {
		e.trades[s.OfferID] = FromSnapshot(s)
	}
}

func newOfferID() string {
	return uuid.NewString()[:8]
}

func tag(name, value string) nostr.Tag { return nostr.Tag{name, value} }

func replyTag(eventID, marker string) nostr.Tag { return nostr.Tag{"e", eventID, "", marker} }

// --- Buyer-initiated actions ---

// SendOffer publishes a 4200 offer for listingID at amountSats, addressed to
// sellerPubkey, and opens a buyer-side trade in OFFERED.
func (e *Engine) SendOffer(sellerPubkey, listingEventID, listingID string, amountSats int64, message string) (*Trade, error) {
	offerID := newOfferID()

	content, err := json.Marshal(map[string]interface{}{
		"listing_id": listingID,
		"offer_sats": amountSats,
		"message":    message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal offer content: %w", err)
	}

	tags := []nostr.Tag{tag("p", sellerPubkey), tag("offer_id", offerID)}
	if listingEventID != "" {
		tags = append(tags, replyTag(listingEventID, "root"))
	}

	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindTradeOffer, tags, string(content))
	if err != nil {
		return nil, fmt.Errorf("build offer event: %w", err)
	}
	if err := e.publisher.Publish(ev); err != nil {
		return nil, fmt.Errorf("publish offer: %w", err)
	}

	trade := &Trade{
		OfferID:      offerID,
		Role:         RoleBuyer,
		State:        StateOffered,
		Counterparty: sellerPubkey,
		ListingID:    listingID,
		Amount:       amountSats,
		StartedAt:    time.Now(),
		Deadline:     time.Now().Add(offerTimeout),
	}

	e.mu.Lock()
	e.trades[offerID] = trade
	e.mu.Unlock()

	e.log.Info("sent trade offer", "offer_id", offerID, "listing_id", listingID, "amount_sats", amountSats)
	return trade, nil
}

// HandleEvent dispatches an incoming trade-kind event to the appropriate
// handler. Unknown offer ids, malformed content, and events for the wrong
// role are dropped silently (per SPEC_FULL.md §4.4 tie-breaks).
func (e *Engine) HandleEvent(ev *nostr.Event) error {
	switch ev.Kind {
	case nostr.KindTradeOffer:
		return e.onTradeOffer(ev)
	case nostr.KindTradeAccept:
		return e.onTradeAccept(ev)
	case nostr.KindTradeReject:
		return e.onTradeReject(ev)
	case nostr.KindEncryptedPayment:
		return e.onPaymentReceived(ev)
	case nostr.KindEncryptedDeliver:
		return e.onProgramDelivery(ev)
	case nostr.KindTradeComplete:
		return e.onTradeComplete(ev)
	}
	return nil
}

// --- Seller side: incoming offer ---

type offerContent struct {
	ListingID string `json:"listing_id"`
	OfferSats int64  `json:"offer_sats"`
}

func (e *Engine) onTradeOffer(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	var content offerContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		e.log.Warn("malformed trade offer content", "error", err)
		return nil
	}

	program, ok := e.inventory.FindListing(content.ListingID)
	if !ok {
		e.log.Debug("offer for unknown listing, ignoring", "listing_id", content.ListingID)
		return nil
	}

	e.mu.Lock()
	sellerActive := e.activeCountLocked(RoleSeller)
	e.mu.Unlock()
	if sellerActive >= sellerTradeLimit {
		e.log.Info("too many active seller trades, ignoring offer", "offer_id", offerID)
		return nil
	}

	buyerTrust := e.rep.GetTrust(ev.PubKey)

	if e.strategy.ShouldAcceptOffer(float64(content.OfferSats), program.Price, buyerTrust) {
		return e.sendAccept(ev, offerID, content.ListingID, content.OfferSats, ev.PubKey)
	}
	return e.sendReject(ev, offerID, content.ListingID, program.Price, content.OfferSats, ev.PubKey)
}

func (e *Engine) sendAccept(offerEvent *nostr.Event, offerID, listingID string, acceptedSats int64, buyerPubkey string) error {
	content, err := json.Marshal(map[string]interface{}{
		"listing_id":           listingID,
		"accepted_sats":        acceptedSats,
		"payment_instructions": "send an ecash token",
	})
	if err != nil {
		return fmt.Errorf("marshal accept content: %w", err)
	}

	tags := []nostr.Tag{tag("p", buyerPubkey), replyTag(offerEvent.ID, "reply"), tag("offer_id", offerID)}
	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindTradeAccept, tags, string(content))
	if err != nil {
		return fmt.Errorf("build accept event: %w", err)
	}
	if err := e.publisher.Publish(ev); err != nil {
		return fmt.Errorf("publish accept: %w", err)
	}

	trade := &Trade{
		OfferID:      offerID,
		Role:         RoleSeller,
		State:        StateAccepted,
		Counterparty: buyerPubkey,
		ListingID:    listingID,
		Amount:       acceptedSats,
		StartedAt:    time.Now(),
		Deadline:     time.Now().Add(paymentTimeout),
	}
	e.mu.Lock()
	e.trades[offerID] = trade
	e.mu.Unlock()

	e.log.Info("accepted trade offer", "offer_id", offerID, "amount_sats", acceptedSats)
	if e.PostChat != nil {
		e.PostChat(fmt.Sprintf("deal! accepting your offer of %d sats~", acceptedSats))
	}
	return nil
}

func (e *Engine) sendReject(offerEvent *nostr.Event, offerID, listingID string, listedPrice float64, offerSats int64, buyerPubkey string) error {
	payload := map[string]interface{}{
		"listing_id": listingID,
		"reason":     "price too low",
	}
	if counter := e.strategy.GetCounterOffer(float64(offerSats), listedPrice); counter > 0 {
		payload["counter_offer_sats"] = counter
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reject content: %w", err)
	}

	tags := []nostr.Tag{tag("p", buyerPubkey), replyTag(offerEvent.ID, "reply"), tag("offer_id", offerID)}
	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindTradeReject, tags, string(content))
	if err != nil {
		return fmt.Errorf("build reject event: %w", err)
	}
	if err := e.publisher.Publish(ev); err != nil {
		return fmt.Errorf("publish reject: %w", err)
	}

	e.log.Info("rejected trade offer", "offer_id", offerID)
	if e.PostChat != nil {
		e.PostChat("nah, that offer's too low for me~")
	}
	return nil
}

// --- Buyer side: accept/reject/delivery ---

type acceptContent struct {
	AcceptedSats int64 `json:"accepted_sats"`
}

func (e *Engine) onTradeAccept(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	e.mu.Lock()
	trade, ok := e.trades[offerID]
	e.mu.Unlock()
	if !ok || trade.Role != RoleBuyer || trade.State != StateOffered {
		return nil
	}

	var content acceptContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		e.log.Warn("malformed trade accept content", "error", err)
		return nil
	}
	amount := content.AcceptedSats
	if amount == 0 {
		amount = trade.Amount
	}

	token, err := e.wallet.CreatePayment(amount)
	if err != nil {
		e.log.Error("failed to create payment", "error", err, "offer_id", offerID)
		return nil
	}

	if err := e.sendPayment(ev, offerID, trade.ListingID, token, amount); err != nil {
		return err
	}

	e.mu.Lock()
	trade.State = StatePaid
	trade.Amount = amount
	trade.Deadline = time.Now().Add(deliveryTimeout)
	e.mu.Unlock()

	if e.PostChat != nil {
		e.PostChat("payment sent, waiting for delivery~")
	}
	return nil
}

type paymentContent struct {
	ListingID string `json:"listing_id"`
	Token     string `json:"token"`
	AmountSat int64  `json:"amount_sats"`
	PaymentID string `json:"payment_id"`
}

func (e *Engine) sendPayment(acceptEvent *nostr.Event, offerID, listingID, token string, amount int64) error {
	sellerPubkeyHex := acceptEvent.PubKey
	sellerPubkey, err := nostr.ParsePubKeyHex(sellerPubkeyHex)
	if err != nil {
		return fmt.Errorf("parse seller pubkey: %w", err)
	}

	plaintext, err := json.Marshal(paymentContent{
		ListingID: listingID,
		Token:     token,
		AmountSat: amount,
		PaymentID: newOfferID(),
	})
	if err != nil {
		return fmt.Errorf("marshal payment content: %w", err)
	}

	envelope, err := nostr.Encrypt(e.keypair.Secret, sellerPubkey, string(plaintext))
	if err != nil {
		return fmt.Errorf("encrypt payment: %w", err)
	}

	tags := []nostr.Tag{tag("p", sellerPubkeyHex), replyTag(acceptEvent.ID, "reply"), tag("offer_id", offerID)}
	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindEncryptedPayment, tags, envelope)
	if err != nil {
		return fmt.Errorf("build payment event: %w", err)
	}
	if err := e.publisher.Publish(ev); err != nil {
		return fmt.Errorf("publish payment: %w", err)
	}

	e.mu.Lock()
	if trade, ok := e.trades[offerID]; ok {
		trade.PaymentEventID = ev.ID
	}
	e.mu.Unlock()

	e.log.Info("sent payment", "offer_id", offerID, "amount_sats", amount)
	return nil
}

func (e *Engine) onTradeReject(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	e.mu.Lock()
	trade, ok := e.trades[offerID]
	if ok {
		delete(e.trades, offerID)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	e.rep.UpdateTrust(ev.PubKey, reputation.EventTradeRejected, 0)
	e.log.Info("offer rejected", "offer_id", offerID)
	return nil
}

type deliveryContent struct {
	ListingID string `json:"listing_id"`
	Language  string `json:"language"`
	Source    string `json:"source"`
	SHA256    string `json:"sha256"`
}

func (e *Engine) onProgramDelivery(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	e.mu.Lock()
	trade, ok := e.trades[offerID]
	e.mu.Unlock()
	if !ok || trade.Role != RoleBuyer || trade.State != StatePaid {
		return nil
	}

	senderPubkey, err := nostr.ParsePubKeyHex(ev.PubKey)
	if err != nil {
		return fmt.Errorf("parse sender pubkey: %w", err)
	}
	plaintext, err := nostr.Decrypt(e.keypair.Secret, senderPubkey, ev.Content)
	if err != nil {
		e.log.Error("failed to decrypt delivery", "error", err, "offer_id", offerID)
		return nil
	}

	var delivery deliveryContent
	if err := json.Unmarshal([]byte(plaintext), &delivery); err != nil {
		e.log.Error("malformed delivery content", "error", err, "offer_id", offerID)
		return nil
	}

	sum := sha256.Sum256([]byte(delivery.Source))
	computed := hex.EncodeToString(sum[:])
	if computed != delivery.SHA256 {
		e.log.Error("delivery hash mismatch", "offer_id", offerID)
		e.rep.UpdateTrust(ev.PubKey, reputation.EventDeliveryTimeout, 0)
		e.mu.Lock()
		delete(e.trades, offerID)
		e.mu.Unlock()
		return nil
	}

	if e.SaveReceivedProgram != nil {
		if err := e.SaveReceivedProgram(delivery.ListingID, delivery.Source); err != nil {
			e.log.Error("failed to save received program", "error", err, "offer_id", offerID)
			return nil
		}
	}

	e.mu.Lock()
	trade.State = StateDelivered
	trade.DeliveryEventID = ev.ID
	e.mu.Unlock()

	if err := e.sendComplete(ev, offerID, delivery.ListingID); err != nil {
		return err
	}

	e.mu.Lock()
	trade.State = StateComplete
	e.stats.ProgramsBought++
	e.stats.TotalSatsSpent += trade.Amount
	e.stats.TradesCompleted++
	amount := trade.Amount
	delete(e.trades, offerID)
	e.mu.Unlock()

	e.rep.UpdateTrust(ev.PubKey, reputation.EventTradeSuccess, amount)
	if e.PostChat != nil {
		e.PostChat("got the goods, everything checks out~!")
	}
	return nil
}

func (e *Engine) sendComplete(deliveryEvent *nostr.Event, offerID, listingID string) error {
	content, err := json.Marshal(map[string]interface{}{
		"listing_id":      listingID,
		"status":          "complete",
		"sha256_verified": true,
	})
	if err != nil {
		return fmt.Errorf("marshal complete content: %w", err)
	}

	tags := []nostr.Tag{tag("p", deliveryEvent.PubKey), replyTag(deliveryEvent.ID, "reply"), tag("offer_id", offerID)}
	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindTradeComplete, tags, string(content))
	if err != nil {
		return fmt.Errorf("build complete event: %w", err)
	}
	return e.publisher.Publish(ev)
}

// --- Seller side: payment receipt and completion ack ---

func (e *Engine) onPaymentReceived(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	e.mu.Lock()
	trade, ok := e.trades[offerID]
	e.mu.Unlock()
	if !ok || trade.Role != RoleSeller {
		return nil
	}

	senderPubkey, err := nostr.ParsePubKeyHex(ev.PubKey)
	if err != nil {
		return fmt.Errorf("parse sender pubkey: %w", err)
	}
	plaintext, err := nostr.Decrypt(e.keypair.Secret, senderPubkey, ev.Content)
	if err != nil {
		e.log.Error("failed to decrypt payment", "error", err, "offer_id", offerID)
		return nil
	}

	var payment paymentContent
	if err := json.Unmarshal([]byte(plaintext), &payment); err != nil {
		e.log.Error("malformed payment content", "error", err, "offer_id", offerID)
		return nil
	}

	amount, err := e.wallet.ReceivePayment(payment.Token)
	if err != nil {
		e.log.Error("token redemption failed", "error", err, "offer_id", offerID)
		e.rep.UpdateTrust(ev.PubKey, reputation.EventPaymentFailed, 0)
		return nil
	}

	e.mu.Lock()
	trade.State = StatePaid
	trade.PaymentEventID = ev.ID
	e.stats.TotalSatsEarned += amount
	e.mu.Unlock()

	program, ok := e.inventory.FindListing(trade.ListingID)
	if !ok {
		e.log.Error("cannot find program for delivery", "listing_id", trade.ListingID, "offer_id", offerID)
		return nil
	}

	if err := e.sendDelivery(ev, offerID, trade.ListingID, program.Source); err != nil {
		return err
	}

	e.mu.Lock()
	trade.State = StateDelivered
	trade.Deadline = time.Now().Add(deliveryTimeout)
	e.mu.Unlock()

	return nil
}

func (e *Engine) sendDelivery(paymentEvent *nostr.Event, offerID, listingID, source string) error {
	buyerPubkeyHex := paymentEvent.PubKey
	buyerPubkey, err := nostr.ParsePubKeyHex(buyerPubkeyHex)
	if err != nil {
		return fmt.Errorf("parse buyer pubkey: %w", err)
	}

	sum := sha256.Sum256([]byte(source))
	plaintext, err := json.Marshal(deliveryContent{
		ListingID: listingID,
		Language:  "go",
		Source:    source,
		SHA256:    hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return fmt.Errorf("marshal delivery content: %w", err)
	}

	envelope, err := nostr.Encrypt(e.keypair.Secret, buyerPubkey, string(plaintext))
	if err != nil {
		return fmt.Errorf("encrypt delivery: %w", err)
	}

	tags := []nostr.Tag{tag("p", buyerPubkeyHex), replyTag(paymentEvent.ID, "reply"), tag("offer_id", offerID)}
	ev, err := nostr.NewEvent(e.keypair, time.Now().Unix(), nostr.KindEncryptedDeliver, tags, envelope)
	if err != nil {
		return fmt.Errorf("build delivery event: %w", err)
	}
	if err := e.publisher.Publish(ev); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}

	e.log.Info("delivered program", "offer_id", offerID, "listing_id", listingID)
	return nil
}

func (e *Engine) onTradeComplete(ev *nostr.Event) error {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		return nil
	}

	e.mu.Lock()
	trade, ok := e.trades[offerID]
	if ok && trade.Role == RoleSeller {
		trade.State = StateComplete
		e.stats.ProgramsSold++
		e.stats.TradesCompleted++
		delete(e.trades, offerID)
	}
	amount := int64(0)
	if ok {
		amount = trade.Amount
	}
	e.mu.Unlock()
	if !ok || trade.Role != RoleSeller {
		return nil
	}

	e.rep.UpdateTrust(ev.PubKey, reputation.EventTradeSuccess, amount)
	if e.PostChat != nil {
		e.PostChat(fmt.Sprintf("sold for %d sats, thanks for the business~!", amount))
	}
	return nil
}

// --- Timeouts ---

// ExpireTimedOut removes every trade whose deadline has passed, applying
// the appropriate trust penalty to the counterparty. Called once per tick.
func (e *Engine) ExpireTimedOut() {
	now := time.Now()

	e.mu.Lock()
	var expired []*Trade
	for offerID, t := range e.trades {
		if now.After(t.Deadline) {
			expired = append(expired, t)
			delete(e.trades, offerID)
		}
	}
	for _, t := range expired {
		if t.State == StateOffered || t.State == StatePaid || t.State == StateDelivered {
			e.stats.TradesFailed++
		}
	}
	e.mu.Unlock()

	for _, t := range expired {
		e.log.Warn("trade timed out", "offer_id", t.OfferID, "state", t.State)
		switch t.State {
		case StateOffered:
			e.rep.UpdateTrust(t.Counterparty, reputation.EventOfferTimeout, 0)
		case StatePaid, StateDelivered:
			e.rep.UpdateTrust(t.Counterparty, reputation.EventDeliveryTimeout, 0)
		}
	}
}
