package tradeengine

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zap-empire/zapempire/internal/nostr"
	"github.com/zap-empire/zapempire/internal/reputation"
)

type fakePublisher struct {
	published []*nostr.Event
}

func (f *fakePublisher) Publish(ev *nostr.Event) error {
	f.published = append(f.published, ev)
	return nil
}

func (f *fakePublisher) last() *nostr.Event {
	if len(f.published) == 0 {
		return nil
	}
	return f.published[len(f.published)-1]
}

type fakeWallet struct {
	createErr  error
	receiveErr error
	balance    int64
}

func (w *fakeWallet) CreatePayment(amount int64) (string, error) {
	if w.createErr != nil {
		return "", w.createErr
	}
	return "token-for-" + strconv.FormatInt(amount, 10), nil
}

func (w *fakeWallet) ReceivePayment(token string) (int64, error) {
	if w.receiveErr != nil {
		return 0, w.receiveErr
	}
	return 500, nil
}

type fakeReputation struct {
	trust   map[string]float64
	updates []reputation.EventType
}

func newFakeReputation() *fakeReputation {
	return &fakeReputation{trust: make(map[string]float64)}
}

func (r *fakeReputation) GetTrust(pubkey string) float64 {
	if v, ok := r.trust[pubkey]; ok {
		return v
	}
	return reputation.DefaultTrust
}

func (r *fakeReputation) UpdateTrust(pubkey string, eventType reputation.EventType, amountSats int64) {
	r.updates = append(r.updates, eventType)
}

type fakeStrategy struct {
	accept  bool
	counter float64
}

func (s *fakeStrategy) ShouldAcceptOffer(offerSats, listedPrice, buyerTrust float64) bool {
	return s.accept
}

func (s *fakeStrategy) GetCounterOffer(offerSats, listedPrice float64) float64 {
	return s.counter
}

type fakeInventory struct {
	listings map[string]ListedProgram
}

func (i *fakeInventory) FindListing(listingID string) (ListedProgram, bool) {
	p, ok := i.listings[listingID]
	return p, ok
}

func newTestEngine(t *testing.T, pub Publisher, wallet Wallet, rep Reputation, strat Strategy, inv Inventory) (*Engine, *nostr.Keypair) {
	t.Helper()
	kp, err := nostr.GenerateKeypair()
	require.NoError(t, err)
	return New(kp, pub, wallet, rep, strat, inv, nil), kp
}

func TestSendOfferCreatesBuyerTrade(t *testing.T) {
	pub := &fakePublisher{}
	e, _ := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{}, &fakeInventory{})

	trade, err := e.SendOffer("seller-pubkey", "listing-event-id", "listing-1", 200, "hi")
	require.NoError(t, err)
	require.Equal(t, StateOffered, trade.State)
	require.Equal(t, RoleBuyer, trade.Role)
	require.Len(t, pub.published, 1)
	require.Equal(t, nostr.KindTradeOffer, pub.last().Kind)
	require.Equal(t, 1, e.ActiveCount(RoleBuyer))
}

func TestSellerAcceptsGoodOffer(t *testing.T) {
	pub := &fakePublisher{}
	inv := &fakeInventory{listings: map[string]ListedProgram{
		"listing-1": {ID: "listing-1", Name: "prog", Price: 100, Source: "package main"},
	}}
	e, sellerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{accept: true}, inv)

	buyerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "offer_sats": 150})
	offerEv, err := nostr.NewEvent(buyerKp, 1000, nostr.KindTradeOffer, []nostr.Tag{
		{"p", sellerKp.PubKeyHex()}, {"offer_id", "abc12345"},
	}, string(content))
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(offerEv))
	require.Equal(t, 1, e.ActiveCount(RoleSeller))
	require.Equal(t, nostr.KindTradeAccept, pub.last().Kind)
}

func TestSellerRejectsLowOfferWithCounter(t *testing.T) {
	pub := &fakePublisher{}
	inv := &fakeInventory{listings: map[string]ListedProgram{
		"listing-1": {ID: "listing-1", Price: 100},
	}}
	e, sellerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{accept: false, counter: 80}, inv)

	buyerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "offer_sats": 50})
	offerEv, err := nostr.NewEvent(buyerKp, 1000, nostr.KindTradeOffer, []nostr.Tag{
		{"p", sellerKp.PubKeyHex()}, {"offer_id", "abc12345"},
	}, string(content))
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(offerEv))
	require.Equal(t, nostr.KindTradeReject, pub.last().Kind)
	require.Equal(t, 0, e.ActiveCount(RoleSeller))

	var rejectContent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pub.last().Content), &rejectContent))
	require.Equal(t, float64(80), rejectContent["counter_offer_sats"])
}

func TestOfferForUnknownListingIsIgnored(t *testing.T) {
	pub := &fakePublisher{}
	e, sellerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{accept: true}, &fakeInventory{listings: map[string]ListedProgram{}})

	buyerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	content, _ := json.Marshal(map[string]interface{}{"listing_id": "ghost", "offer_sats": 150})
	offerEv, err := nostr.NewEvent(buyerKp, 1000, nostr.KindTradeOffer, []nostr.Tag{
		{"p", sellerKp.PubKeyHex()}, {"offer_id", "abc12345"},
	}, string(content))
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(offerEv))
	require.Empty(t, pub.published)
}

func TestSellerTradeLimitIgnoresFurtherOffers(t *testing.T) {
	pub := &fakePublisher{}
	inv := &fakeInventory{listings: map[string]ListedProgram{
		"listing-1": {ID: "listing-1", Price: 100},
	}}
	e, sellerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{accept: true}, inv)

	buyerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	for i := 0; i < sellerTradeLimit; i++ {
		content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "offer_sats": 150})
		offerEv, err := nostr.NewEvent(buyerKp, int64(1000+i), nostr.KindTradeOffer, []nostr.Tag{
			{"p", sellerKp.PubKeyHex()}, {"offer_id", strconv.Itoa(i) + "-id"},
		}, string(content))
		require.NoError(t, err)
		require.NoError(t, e.HandleEvent(offerEv))
	}
	require.Equal(t, sellerTradeLimit, e.ActiveCount(RoleSeller))

	publishedBefore := len(pub.published)
	content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "offer_sats": 150})
	offerEv, err := nostr.NewEvent(buyerKp, 2000, nostr.KindTradeOffer, []nostr.Tag{
		{"p", sellerKp.PubKeyHex()}, {"offer_id", "overflow"},
	}, string(content))
	require.NoError(t, err)
	require.NoError(t, e.HandleEvent(offerEv))

	require.Equal(t, publishedBefore, len(pub.published), "offer beyond the seller trade limit must not publish a response")
	require.Equal(t, sellerTradeLimit, e.ActiveCount(RoleSeller))
}

func TestBuyerPaysOnAccept(t *testing.T) {
	pub := &fakePublisher{}
	e, buyerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{}, &fakeInventory{})

	trade, err := e.SendOffer("seller-pubkey", "", "listing-1", 150, "")
	require.NoError(t, err)

	sellerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)
	content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "accepted_sats": 150})
	acceptEv, err := nostr.NewEvent(sellerKp, 1001, nostr.KindTradeAccept, []nostr.Tag{
		{"p", buyerKp.PubKeyHex()}, {"offer_id", trade.OfferID},
	}, string(content))
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(acceptEv))
	require.Equal(t, nostr.KindEncryptedPayment, pub.last().Kind)

	snaps := e.Snapshot()
	require.Len(t, snaps, 1)
	require.Equal(t, StatePaid, snaps[0].State)
}

func TestFullBuyerSellerRoundTrip(t *testing.T) {
	buyerPub := &fakePublisher{}
	sellerPub := &fakePublisher{}
	buyerRep := newFakeReputation()
	sellerRep := newFakeReputation()

	source := "package main\n\nfunc main() {}\n"
	sellerInv := &fakeInventory{listings: map[string]ListedProgram{
		"listing-1": {ID: "listing-1", Name: "widget", Price: 100, Source: source},
	}}

	buyer, _ := newTestEngine(t, buyerPub, &fakeWallet{}, buyerRep, &fakeStrategy{}, &fakeInventory{})
	seller, sellerKp := newTestEngine(t, sellerPub, &fakeWallet{}, sellerRep, &fakeStrategy{accept: true}, sellerInv)

	var savedListingID, savedSource string
	buyer.SaveReceivedProgram = func(listingID, src string) error {
		savedListingID, savedSource = listingID, src
		return nil
	}

	// Buyer sends offer.
	_, err := buyer.SendOffer(sellerKp.PubKeyHex(), "", "listing-1", 150, "")
	require.NoError(t, err)
	offerEv := buyerPub.last()

	// Seller receives offer, accepts.
	require.NoError(t, seller.HandleEvent(offerEv))
	acceptEv := sellerPub.last()
	require.Equal(t, nostr.KindTradeAccept, acceptEv.Kind)

	// Buyer receives accept, pays.
	require.NoError(t, buyer.HandleEvent(acceptEv))
	paymentEv := buyerPub.last()
	require.Equal(t, nostr.KindEncryptedPayment, paymentEv.Kind)

	// Seller receives payment, delivers.
	require.NoError(t, seller.HandleEvent(paymentEv))
	deliveryEv := sellerPub.last()
	require.Equal(t, nostr.KindEncryptedDeliver, deliveryEv.Kind)

	// Buyer receives delivery, verifies, completes.
	require.NoError(t, buyer.HandleEvent(deliveryEv))
	completeEv := buyerPub.last()
	require.Equal(t, nostr.KindTradeComplete, completeEv.Kind)
	require.Equal(t, "listing-1", savedListingID)
	require.Equal(t, source, savedSource)
	require.Equal(t, 0, buyer.ActiveCount(RoleBuyer))

	// Seller receives completion.
	require.NoError(t, seller.HandleEvent(completeEv))
	require.Equal(t, 0, seller.ActiveCount(RoleSeller))

	require.Contains(t, buyerRep.updates, reputation.EventTradeSuccess)
	require.Contains(t, sellerRep.updates, reputation.EventTradeSuccess)

	require.Equal(t, 1, buyer.Stats().ProgramsBought)
	require.Equal(t, 1, seller.Stats().ProgramsSold)
}

func TestDeliveryHashMismatchPenalizesSeller(t *testing.T) {
	buyerPub := &fakePublisher{}
	buyerRep := newFakeReputation()
	buyer, buyerKp := newTestEngine(t, buyerPub, &fakeWallet{}, buyerRep, &fakeStrategy{}, &fakeInventory{})

	trade, err := buyer.SendOffer("seller-pubkey", "", "listing-1", 150, "")
	require.NoError(t, err)

	sellerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	// Move the trade to PAID so delivery passes HandleEvent's role and state check.
	acceptContent, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "accepted_sats": 150})
	acceptEv, err := nostr.NewEvent(sellerKp, 1001, nostr.KindTradeAccept, []nostr.Tag{
		{"p", buyerKp.PubKeyHex()}, {"offer_id", trade.OfferID},
	}, string(acceptContent))
	require.NoError(t, err)
	require.NoError(t, buyer.HandleEvent(acceptEv))

	plaintext, _ := json.Marshal(map[string]interface{}{
		"listing_id": "listing-1",
		"language":   "go",
		"source":     "package main",
		"sha256":     "not-the-real-hash",
	})
	envelope, err := nostr.Encrypt(sellerKp.Secret, mustPubKey(t, buyerKp), string(plaintext))
	require.NoError(t, err)

	deliveryEv, err := nostr.NewEvent(sellerKp, 1002, nostr.KindEncryptedDeliver, []nostr.Tag{
		{"p", buyerKp.PubKeyHex()}, {"offer_id", trade.OfferID},
	}, envelope)
	require.NoError(t, err)

	require.NoError(t, buyer.HandleEvent(deliveryEv))
	require.Contains(t, buyerRep.updates, reputation.EventDeliveryTimeout)
	require.Equal(t, 0, buyer.ActiveCount(RoleBuyer))
}

func mustPubKey(t *testing.T, kp *nostr.Keypair) [32]byte {
	t.Helper()
	pk, err := nostr.ParsePubKeyHex(kp.PubKeyHex())
	require.NoError(t, err)
	return pk
}

func TestExpireTimedOutAppliesOfferTimeoutPenalty(t *testing.T) {
	pub := &fakePublisher{}
	rep := newFakeReputation()
	e, _ := newTestEngine(t, pub, &fakeWallet{}, rep, &fakeStrategy{}, &fakeInventory{})

	trade, err := e.SendOffer("seller-pubkey", "", "listing-1", 150, "")
	require.NoError(t, err)

	e.mu.Lock()
	e.trades[trade.OfferID].Deadline = e.trades[trade.OfferID].Deadline.Add(-2 * offerTimeout)
	e.mu.Unlock()

	e.ExpireTimedOut()
	require.Equal(t, 0, e.ActiveCount(RoleBuyer))
	require.Contains(t, rep.updates, reputation.EventOfferTimeout)
	require.Equal(t, 1, e.Stats().TradesFailed)
}

func TestAcceptAfterTimeoutIsIgnored(t *testing.T) {
	pub := &fakePublisher{}
	e, buyerKp := newTestEngine(t, pub, &fakeWallet{}, newFakeReputation(), &fakeStrategy{}, &fakeInventory{})

	trade, err := e.SendOffer("seller-pubkey", "", "listing-1", 150, "")
	require.NoError(t, err)

	e.mu.Lock()
	delete(e.trades, trade.OfferID) // simulate the tick loop having already expired it
	e.mu.Unlock()

	sellerKp, err := nostr.GenerateKeypair()
	require.NoError(t, err)
	content, _ := json.Marshal(map[string]interface{}{"listing_id": "listing-1", "accepted_sats": 150})
	acceptEv, err := nostr.NewEvent(sellerKp, 1001, nostr.KindTradeAccept, []nostr.Tag{
		{"p", buyerKp.PubKeyHex()}, {"offer_id", trade.OfferID},
	}, string(content))
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(acceptEv))
	require.Empty(t, pub.published)
}
