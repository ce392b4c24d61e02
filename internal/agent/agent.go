// Package agent implements the autonomous trading agent: boot sequence,
// the three concurrent listen/tick/persist loops, activity-tick action
// selection, quality depreciation, and state persistence. Grounded on
// original_source/src/user/agent.py's UserAgent class.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zap-empire/zapempire/internal/chat"
	"github.com/zap-empire/zapempire/internal/marketplace"
	"github.com/zap-empire/zapempire/internal/nostr"
	"github.com/zap-empire/zapempire/internal/personality"
	"github.com/zap-empire/zapempire/internal/proggen"
	"github.com/zap-empire/zapempire/internal/reputation"
	"github.com/zap-empire/zapempire/internal/sandbox"
	"github.com/zap-empire/zapempire/internal/strategy"
	"github.com/zap-empire/zapempire/internal/tradeengine"
	"github.com/zap-empire/zapempire/internal/wallet"
	"github.com/zap-empire/zapempire/pkg/logging"
)

const (
	tickInterval    = 60 * time.Second
	persistInterval = 30 * time.Second
	idleChatProb    = 0.3
	listingMaxAge   = 5 * time.Minute
	priceFloorSats  = 10
	priceDiscount   = 0.9
	startingBalance = 5000
	productionRatio = 0.3 // production cost as a fraction of a program's listing price
)

// Config configures one agent instance.
type Config struct {
	Index        int
	DataDir      string
	RelayURL     string
	TickInterval time.Duration
}

// Program is an owned unit of inventory: generated or purchased, optionally
// listed for sale, subject to quality depreciation.
type Program struct {
	ID             string
	Name           string
	Category       string
	Complexity     string
	PriceSats      float64
	ProductionCost float64
	Listed         bool
	ListedAt       time.Time
	QualityScore   *float64
}

// Stats accumulates lifetime counters for status reporting and persistence.
type Stats struct {
	TotalTradesCompleted int   `json:"total_trades_completed"`
	TotalSatsEarned      int64 `json:"total_sats_earned"`
	TotalSatsSpent       int64 `json:"total_sats_spent"`
	ProgramsCreated      int   `json:"programs_created"`
	ProgramsSold         int   `json:"programs_sold"`
	ProgramsBought       int   `json:"programs_bought"`
	TradesFailed         int   `json:"trades_failed"`
}

// Agent is one autonomous trading participant: identity, wallet,
// reputation ledger, trade engine, and marketplace view, driven by a
// personality-parameterized strategy.
type Agent struct {
	index       int
	agentID     string
	name        string
	personality personality.Personality
	cfg         Config

	dataDir   string
	stateFile string

	keypair   *nostr.Keypair
	client    *nostr.Client
	wallet    *wallet.Wallet
	rep       *reputation.Ledger
	strategy  *strategy.Engine
	trades    *tradeengine.Engine
	market    *marketplace.View
	store     *marketplace.Store
	chatGen   *chat.Generator
	progGen   *proggen.Generator
	sandbox   func(ctx context.Context, source string) sandbox.Result
	directory *Directory

	log *logging.Logger

	mu       sync.Mutex
	programs []*Program
	stats    Stats

	namesMu sync.Mutex
	names   map[string]string

	tickCount int64
	startedAt time.Time
}

// New constructs an agent for the given roster index. Modules that require
// I/O (keypair, wallet, relay connection) are initialized in Boot, not here.
func New(cfg Config) (*Agent, error) {
	p, rosterCfg, err := personality.GetPersonality(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("resolve personality: %w", err)
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = tickInterval
	}
	cfg.TickInterval = tick

	agentID := fmt.Sprintf("user%d", cfg.Index)
	dataDir := filepath.Join(cfg.DataDir, agentID)

	return &Agent{
		index:       cfg.Index,
		agentID:     agentID,
		name:        rosterCfg.Name,
		personality: p,
		cfg:         cfg,
		dataDir:     dataDir,
		stateFile:   filepath.Join(dataDir, "state.json"),
		chatGen:     chat.New(rosterCfg.Name),
		progGen:     proggen.New(p),
		sandbox:     sandbox.Test,
		names:       make(map[string]string),
	}, nil
}

// Boot runs the full startup sequence: keypair, wallet, relay connection,
// dependent modules, state restore, identity/status publish, subscriptions,
// greeting. Grounded on agent.py::boot.
func (a *Agent) Boot(ctx context.Context) error {
	a.log = logging.Default().Component(a.agentID)
	a.log.Info("booting", "name", a.name, "personality", a.personality.Archetype)

	if err := os.MkdirAll(a.dataDir, 0700); err != nil {
		return fmt.Errorf("create agent data dir: %w", err)
	}

	kp, err := nostr.LoadOrCreateKeypair(a.dataDir)
	if err != nil {
		return fmt.Errorf("load/generate keypair: %w", err)
	}
	a.keypair = kp
	a.log.Info("keypair ready", "pubkey", shortHex(kp.PubKeyHex()))

	w, err := wallet.Load(filepath.Join(a.dataDir, "wallet", "wallet.json"))
	if err != nil {
		a.log.Warn("wallet load failed, starting fresh", "error", err)
		w = wallet.New(filepath.Join(a.dataDir, "wallet", "wallet.json"))
	}
	if w.Balance() == 0 {
		w.MintTokens(startingBalance)
	}
	a.wallet = w

	a.client = nostr.NewClient(a.cfg.RelayURL, a.log)
	if err := a.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}

	rep, err := reputation.Load(filepath.Join(a.dataDir, "reputation.json"))
	if err != nil {
		return fmt.Errorf("load reputation: %w", err)
	}
	a.rep = rep

	a.strategy = strategy.New(a.personality, startingBalance)

	marketDir := filepath.Join(a.dataDir, "listings")
	store, err := marketplace.OpenStore(marketDir)
	if err != nil {
		return fmt.Errorf("open listing store: %w", err)
	}
	a.store = store
	a.market = marketplace.NewView(kp.PubKeyHex())
	if cached, err := store.LoadAll(); err != nil {
		a.log.Warn("failed to load cached listings", "error", err)
	} else {
		for _, l := range cached {
			a.market.Seed(l)
		}
	}

	dir, err := OpenDirectory(filepath.Join(a.dataDir, "directory"))
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	a.directory = dir

	a.trades = tradeengine.New(kp, a.client, a.wallet, a.rep, a.strategy, a, a.log)
	a.trades.PostChat = func(text string) { a.postChat(text) }
	a.trades.SaveReceivedProgram = a.saveReceivedProgram

	a.loadState()

	if err := a.publishIdentity(); err != nil {
		a.log.Warn("failed to publish identity", "error", err)
	}

	if err := a.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	a.postChat(a.chatGen.Greeting())

	if err := a.publishStatus(); err != nil {
		a.log.Warn("failed to publish status", "error", err)
	}

	a.log.Info("boot complete", "balance_sats", a.wallet.Balance())
	return nil
}

// Run launches the listen, tick, and persist loops and blocks until ctx is
// cancelled, then performs a graceful shutdown.
func (a *Agent) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		a.listenLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.tickLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.persistLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return a.shutdown()
}

func (a *Agent) shutdown() error {
	a.log.Info("shutting down")

	a.saveState()
	if err := a.rep.Save(); err != nil {
		a.log.Error("failed to save reputation", "error", err)
	}
	if err := a.client.Disconnect(); err != nil {
		a.log.Error("failed to disconnect relay", "error", err)
	}
	if a.directory != nil {
		_ = a.directory.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("shutdown complete")
	return nil
}

func shortHex(s string) string {
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}

// --- Event loops ---

func (a *Agent) listenLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case incoming, ok := <-a.client.Listen():
			if !ok {
				return
			}
			if err := a.dispatchEvent(incoming.Event); err != nil {
				a.log.Error("error handling event", "kind", incoming.Event.Kind, "error", err)
			}
		}
	}
}

func (a *Agent) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.activityTick(); err != nil {
				a.log.Error("tick error", "error", err)
			}
		}
	}
}

func (a *Agent) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.saveState()
			if err := a.rep.Save(); err != nil {
				a.log.Error("failed to save reputation", "error", err)
			}
		}
	}
}

// --- Activity tick ---

func (a *Agent) activityTick() error {
	a.tickCount++

	a.trades.ExpireTimedOut()
	a.rep.DecayAll()
	a.applyDepreciation()

	balance := float64(a.wallet.Balance())
	activeTrades := a.trades.ActiveCount(tradeengine.RoleBuyer) + a.trades.ActiveCount(tradeengine.RoleSeller)

	a.mu.Lock()
	hasOwnListings := false
	for _, p := range a.programs {
		if p.Listed {
			hasOwnListings = true
			break
		}
	}
	a.mu.Unlock()

	action := a.strategy.SelectAction(activeTrades, balance, a.market.Count() > 0, hasOwnListings)
	a.log.Info("tick", "tick", a.tickCount, "action", action, "balance_sats", a.wallet.Balance())

	switch action {
	case strategy.ActionCreate:
		a.createProgram()
	case strategy.ActionBuy:
		a.tryBuy()
	case strategy.ActionAdjustPrices:
		a.adjustPrices()
	default:
		if rand.Float64() < idleChatProb {
			a.postChat(a.chatGen.Idle(a.wallet.Balance()))
		}
	}

	if a.tickCount%5 == 0 {
		if err := a.publishStatus(); err != nil {
			a.log.Warn("failed to publish status", "error", err)
		}
	}
	return nil
}

// createProgram generates, sandbox-tests, and lists a new candidate
// program. Grounded on agent.py::_create_program.
func (a *Agent) createProgram() {
	generated, err := a.progGen.Generate("")
	if err != nil {
		a.log.Warn("program generation failed", "error", err)
		return
	}

	productionCost := generated.PriceSats * productionRatio
	if productionCost > float64(a.wallet.Balance()) {
		a.postChat(a.chatGen.ProductionTooExpensive(generated.Name, int64(productionCost)))
		return
	}
	if !a.wallet.Deduct(int64(productionCost)) {
		a.log.Warn("failed to deduct production cost", "cost_sats", productionCost)
		return
	}
	a.addStat(func(s *Stats) { s.TotalSatsSpent += int64(productionCost) })

	result := a.sandbox(context.Background(), generated.Source)
	if !result.Accepted {
		a.log.Warn("program failed sandbox test", "name", generated.Name, "reason", result.Reason)
		return
	}

	progDir := filepath.Join(a.dataDir, "programs")
	if err := os.MkdirAll(progDir, 0700); err != nil {
		a.log.Error("failed to create program dir", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(progDir, generated.ID+".go"), []byte(generated.Source), 0600); err != nil {
		a.log.Error("failed to save program source", "error", err)
		return
	}

	quality := 1.0
	program := &Program{
		ID:             generated.ID,
		Name:           generated.Name,
		Category:       generated.Category,
		Complexity:     generated.Complexity,
		PriceSats:      generated.PriceSats,
		ProductionCost: productionCost,
		Listed:         true,
		ListedAt:       time.Now(),
		QualityScore:   &quality,
	}

	a.mu.Lock()
	a.programs = append(a.programs, program)
	a.mu.Unlock()
	a.addStat(func(s *Stats) { s.ProgramsCreated++ })

	if err := a.publishListing(program, generated.Description, generated.Source); err != nil {
		a.log.Error("failed to publish listing", "error", err)
	}

	a.postChat(a.chatGen.Listing(program.Name, int64(program.PriceSats)))
}

// applyDepreciation decays every owned program's quality score by the band
// rate and discards anything that falls below the threshold. Grounded on
// agent.py::_apply_depreciation.
func (a *Agent) applyDepreciation() {
	var discarded []*Program

	a.mu.Lock()
	kept := a.programs[:0]
	for _, p := range a.programs {
		if p.QualityScore == nil {
			kept = append(kept, p)
			continue
		}
		q := *p.QualityScore
		var rate float64
		switch {
		case q >= 0.8:
			rate = 0.999
		case q < 0.4:
			rate = 0.995
		default:
			rate = 0.998
		}
		q *= rate
		p.QualityScore = &q

		if q < 0.1 {
			discarded = append(discarded, p)
			continue
		}
		kept = append(kept, p)
	}
	a.programs = kept
	a.mu.Unlock()

	for _, p := range discarded {
		a.log.Info("discarding low-quality program", "name", p.Name, "quality", *p.QualityScore)
		if p.Listed {
			if err := a.delistProgram(p); err != nil {
				a.log.Warn("failed to delist discarded program", "error", err)
			}
		}
		a.postChat(a.chatGen.ProgramDiscarded(p.Name))
	}
}

// tryBuy evaluates the first interesting listing and sends an offer if it
// clears budget and concurrency bounds. Grounded on agent.py::_try_buy.
func (a *Agent) tryBuy() {
	balance := float64(a.wallet.Balance())
	predicate := func(l *marketplace.Listing) bool {
		trust := a.rep.GetTrust(l.SellerPubkey)
		estValue := a.strategy.EstimateValue(l.Price, trust)
		return a.strategy.ShouldBuy(l.Price, trust, false, 0, l.Category == a.personality.CategoryFocus, estValue, balance)
	}

	interesting := a.market.GetInterestingListings(predicate)
	if len(interesting) == 0 {
		return
	}
	listing := interesting[0]

	offerPrice := a.strategy.CalculateOfferPrice(listing.Price, balance)
	if offerPrice <= 0 || offerPrice > a.strategy.GetBudgetLimit(balance) {
		return
	}

	if a.trades.ActiveCount(tradeengine.RoleBuyer) >= 3 {
		return
	}

	a.log.Info("sending offer", "seller", a.nameFor(listing.SellerPubkey), "listing", listing.Name, "offer_sats", offerPrice)
	a.postChat(a.chatGen.Buying(listing.Name))

	if _, err := a.trades.SendOffer(listing.SellerPubkey, listing.EventID, listing.DTag, int64(offerPrice), ""); err != nil {
		a.log.Error("failed to send offer", "error", err)
	}
}

// adjustPrices discounts every own listing older than listingMaxAge.
// Grounded on agent.py::_adjust_prices.
func (a *Agent) adjustPrices() {
	a.mu.Lock()
	var toRepublish []*Program
	for _, p := range a.programs {
		if !p.Listed {
			continue
		}
		if time.Since(p.ListedAt) <= listingMaxAge {
			continue
		}
		newPrice := p.PriceSats * priceDiscount
		if newPrice < priceFloorSats {
			newPrice = priceFloorSats
		}
		if newPrice == p.PriceSats {
			continue
		}
		p.PriceSats = newPrice
		toRepublish = append(toRepublish, p)
	}
	a.mu.Unlock()

	for _, p := range toRepublish {
		if err := a.republishListing(p); err != nil {
			a.log.Warn("failed to republish adjusted listing", "error", err)
			continue
		}
		a.postChat(a.chatGen.PriceAdjust(p.Name, int64(p.PriceSats)))
	}
}

// --- Event dispatch ---

func (a *Agent) dispatchEvent(ev *nostr.Event) error {
	switch ev.Kind {
	case nostr.KindMetadata:
		a.onMetadata(ev)
		return nil
	case nostr.KindChat:
		return nil
	case nostr.KindListing:
		if err := a.market.OnListing(ev); err != nil {
			return err
		}
		return a.cacheObservedListing(ev)
	case nostr.KindTradeOffer, nostr.KindTradeAccept, nostr.KindTradeReject,
		nostr.KindTradeComplete, nostr.KindEncryptedPayment, nostr.KindEncryptedDeliver:
		return a.trades.HandleEvent(ev)
	default:
		return nil
	}
}

type metadataContent struct {
	Name string `json:"name"`
}

func (a *Agent) onMetadata(ev *nostr.Event) {
	var meta metadataContent
	if err := json.Unmarshal([]byte(ev.Content), &meta); err != nil {
		return
	}
	a.namesMu.Lock()
	a.names[ev.PubKey] = meta.Name
	a.namesMu.Unlock()
	if a.directory != nil {
		if err := a.directory.LearnName(ev.PubKey, meta.Name); err != nil {
			a.log.Warn("failed to persist learned name", "error", err)
		}
	}
}

// nameFor returns the friendliest known display name for pubkey.
func (a *Agent) nameFor(pubkey string) string {
	a.namesMu.Lock()
	name, ok := a.names[pubkey]
	a.namesMu.Unlock()
	if ok && name != "" {
		return name
	}
	if len(pubkey) > 8 {
		return pubkey[:8] + "..."
	}
	return pubkey
}

// --- Identity, subscriptions, status ---

func (a *Agent) postChat(message string) {
	ev, err := nostr.NewEvent(a.keypair, time.Now().Unix(), nostr.KindChat, nil, message)
	if err != nil {
		a.log.Error("failed to build chat event", "error", err)
		return
	}
	if err := a.client.Publish(ev); err != nil {
		a.log.Error("failed to publish chat", "error", err)
		return
	}
	a.log.Info("chat", "message", message)
}

type identityContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Role        string `json:"role"`
	Personality string `json:"personality"`
}

func (a *Agent) publishIdentity() error {
	content, err := json.Marshal(identityContent{
		Name:        a.agentID,
		DisplayName: a.name,
		About:       fmt.Sprintf("Zap Empire %s agent", a.personality.Archetype),
		Role:        "user-agent",
		Personality: string(a.personality.Archetype),
	})
	if err != nil {
		return fmt.Errorf("marshal identity content: %w", err)
	}

	ev, err := nostr.NewEvent(a.keypair, time.Now().Unix(), nostr.KindMetadata, nil, string(content))
	if err != nil {
		return fmt.Errorf("build identity event: %w", err)
	}
	return a.client.Publish(ev)
}

func (a *Agent) subscribe() error {
	myPub := a.keypair.PubKeyHex()

	if err := a.client.Subscribe("listings", nostr.Filter{Kinds: []int{nostr.KindListing}}); err != nil {
		return err
	}
	if err := a.client.Subscribe("chat", nostr.Filter{Kinds: []int{nostr.KindChat}}); err != nil {
		return err
	}
	if err := a.client.Subscribe("metadata", nostr.Filter{Kinds: []int{nostr.KindMetadata}}); err != nil {
		return err
	}
	return a.client.Subscribe("trades", nostr.Filter{
		Kinds: []int{
			nostr.KindTradeOffer, nostr.KindTradeAccept, nostr.KindTradeReject,
			nostr.KindTradeComplete, nostr.KindEncryptedPayment, nostr.KindEncryptedDeliver,
			9735,
		},
		Tags: map[string][]string{"p": {myPub}},
	})
}

type statusContent struct {
	BalanceSats    int64  `json:"balance_sats"`
	ProgramsOwned  int    `json:"programs_owned"`
	ProgramsListed int    `json:"programs_listed"`
	ActiveTrades   int    `json:"active_trades"`
	LastAction     string `json:"last_action"`
	TickCount      int64  `json:"tick_count"`
	Timestamp      int64  `json:"ts"`
}

func (a *Agent) publishStatus() error {
	a.mu.Lock()
	owned := len(a.programs)
	listed := 0
	for _, p := range a.programs {
		if p.Listed {
			listed++
		}
	}
	a.mu.Unlock()

	active := a.trades.ActiveCount(tradeengine.RoleBuyer) + a.trades.ActiveCount(tradeengine.RoleSeller)

	content, err := json.Marshal(statusContent{
		BalanceSats:    a.wallet.Balance(),
		ProgramsOwned:  owned,
		ProgramsListed: listed,
		ActiveTrades:   active,
		LastAction:     "tick",
		TickCount:      a.tickCount,
		Timestamp:      time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal status content: %w", err)
	}

	tags := []nostr.Tag{{"agent_name", a.agentID}, {"role", "user-agent"}}
	ev, err := nostr.NewEvent(a.keypair, time.Now().Unix(), nostr.KindStatus, tags, string(content))
	if err != nil {
		return fmt.Errorf("build status event: %w", err)
	}
	return a.client.Publish(ev)
}

// --- Listings ---

func (a *Agent) publishListing(p *Program, description, source string) error {
	tags, content, err := marketplace.BuildListingEvent(marketplace.ProgramForListing{
		ID: p.ID, Name: p.Name, Description: description, Category: p.Category,
		Complexity: p.Complexity, PriceSats: p.PriceSats, Source: source, Quality: p.QualityScore,
	})
	if err != nil {
		return err
	}
	ev, err := nostr.NewEvent(a.keypair, time.Now().Unix(), nostr.KindListing, tags, content)
	if err != nil {
		return err
	}
	if err := a.client.Publish(ev); err != nil {
		return err
	}
	return a.store.Put(&marketplace.Listing{
		SellerPubkey: a.keypair.PubKeyHex(), DTag: p.ID, EventID: ev.ID,
		Name: p.Name, Description: description, Category: p.Category, Complexity: p.Complexity,
		Price: p.PriceSats, Quality: p.QualityScore, ObservedAt: time.Now(),
	})
}

func (a *Agent) republishListing(p *Program) error {
	source, err := a.readProgramSource(p.ID)
	if err != nil {
		source = ""
	}
	return a.publishListing(p, "", source)
}

func (a *Agent) delistProgram(p *Program) error {
	ev, err := nostr.NewEvent(a.keypair, time.Now().Unix(), nostr.KindDeletion, []nostr.Tag{{"e", p.ID}}, "")
	if err != nil {
		return err
	}
	if err := a.client.Publish(ev); err != nil {
		return err
	}
	a.market.Delist(p.ID)
	return a.store.Delete(p.ID)
}

func (a *Agent) cacheObservedListing(ev *nostr.Event) error {
	dTag := ev.TagValue("d")
	if dTag == "" {
		return nil
	}
	l, ok := a.market.Get(dTag)
	if !ok {
		return nil
	}
	return a.store.Put(l)
}

func (a *Agent) readProgramSource(listingID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(a.dataDir, "programs", listingID+".go"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FindListing implements tradeengine.Inventory: look up one of this agent's
// own listed programs by id.
func (a *Agent) FindListing(listingID string) (tradeengine.ListedProgram, bool) {
	a.mu.Lock()
	var found *Program
	for _, p := range a.programs {
		if p.ID == listingID && p.Listed {
			found = p
			break
		}
	}
	a.mu.Unlock()
	if found == nil {
		return tradeengine.ListedProgram{}, false
	}

	source, err := a.readProgramSource(listingID)
	if err != nil {
		a.log.Error("failed to read program source for delivery", "listing_id", listingID, "error", err)
		return tradeengine.ListedProgram{}, false
	}

	return tradeengine.ListedProgram{
		ID: found.ID, Name: found.Name, Category: found.Category, Price: found.PriceSats, Source: source,
	}, true
}

func (a *Agent) saveReceivedProgram(listingID, source string) error {
	progDir := filepath.Join(a.dataDir, "programs")
	if err := os.MkdirAll(progDir, 0700); err != nil {
		return fmt.Errorf("create program dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(progDir, listingID+".go"), []byte(source), 0600); err != nil {
		return fmt.Errorf("write received program: %w", err)
	}

	a.mu.Lock()
	a.programs = append(a.programs, &Program{
		ID:         listingID,
		Name:       listingID,
		Category:   "unknown",
		Complexity: "medium",
		Listed:     false,
	})
	a.mu.Unlock()
	a.addStat(func(s *Stats) { s.ProgramsBought++ })

	a.log.Info("saved received program", "listing_id", listingID)
	return nil
}

func (a *Agent) addStat(mutate func(*Stats)) {
	a.mu.Lock()
	mutate(&a.stats)
	a.mu.Unlock()
}

// --- State persistence ---

type programSnapshot struct {
	UUID           string   `json:"uuid"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Complexity     string   `json:"complexity"`
	Price          float64  `json:"price"`
	Listed         bool     `json:"listed"`
	ListedAt       int64    `json:"listed_at"`
	QualityScore   *float64 `json:"quality_score"`
	ProductionCost float64  `json:"production_cost"`
}

type stateFile struct {
	AgentID       string                         `json:"agent_id"`
	Name          string                         `json:"name"`
	Personality   string                         `json:"personality"`
	StartedAt     int64                          `json:"started_at"`
	WalletBalance int64                          `json:"wallet_balance"`
	TickCount     int64                          `json:"tick_count"`
	Programs      []programSnapshot              `json:"programs"`
	ActiveTrades  map[string]tradeengine.Snapshot `json:"active_trades"`
	Stats         Stats                           `json:"stats"`
}

func (a *Agent) saveState() {
	a.mu.Lock()
	programs := make([]programSnapshot, 0, len(a.programs))
	for _, p := range a.programs {
		programs = append(programs, programSnapshot{
			UUID: p.ID, Name: p.Name, Category: p.Category, Complexity: p.Complexity,
			Price: p.PriceSats, Listed: p.Listed, ListedAt: p.ListedAt.Unix(),
			QualityScore: p.QualityScore, ProductionCost: p.ProductionCost,
		})
	}
	stats := a.stats
	a.mu.Unlock()

	trades := a.trades.Snapshot()
	activeTrades := make(map[string]tradeengine.Snapshot, len(trades))
	for _, t := range trades {
		activeTrades[t.OfferID] = t
	}

	state := stateFile{
		AgentID: a.agentID, Name: a.name, Personality: string(a.personality.Archetype),
		StartedAt: a.startedAt.Unix(), WalletBalance: a.wallet.Balance(), TickCount: a.tickCount,
		Programs: programs, ActiveTrades: activeTrades, Stats: stats,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		a.log.Error("failed to marshal state", "error", err)
		return
	}

	tmp := a.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		a.log.Error("failed to write state file", "error", err)
		return
	}
	if err := os.Rename(tmp, a.stateFile); err != nil {
		a.log.Error("failed to rename state file", "error", err)
	}

	if err := a.wallet.Save(); err != nil {
		a.log.Error("failed to save wallet", "error", err)
	}
}

func (a *Agent) loadState() {
	a.startedAt = time.Now()

	data, err := os.ReadFile(a.stateFile)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		a.log.Warn("failed to read state file", "error", err)
		return
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		a.log.Warn("failed to parse state file", "error", err)
		return
	}

	a.tickCount = state.TickCount
	a.stats = state.Stats
	if state.StartedAt > 0 {
		a.startedAt = time.Unix(state.StartedAt, 0)
	}

	a.mu.Lock()
	a.programs = a.programs[:0]
	for _, p := range state.Programs {
		a.programs = append(a.programs, &Program{
			ID: p.UUID, Name: p.Name, Category: p.Category, Complexity: p.Complexity,
			PriceSats: p.Price, Listed: p.Listed, ListedAt: time.Unix(p.ListedAt, 0),
			QualityScore: p.QualityScore, ProductionCost: p.ProductionCost,
		})
	}
	a.mu.Unlock()

	snapshots := make([]tradeengine.Snapshot, 0, len(state.ActiveTrades))
	for _, t := range state.ActiveTrades {
		snapshots = append(snapshots, t)
	}
	a.trades.Restore(snapshots)

	a.log.Info("restored state", "programs", len(state.Programs), "tick", a.tickCount)
}
