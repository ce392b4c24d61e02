// Package marketplace accumulates externally-observed listings, expires
// stale ones, and scores candidates for purchase. Grounded on
// original_source/src/user/marketplace.py.
package marketplace

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zap-empire/zapempire/internal/nostr"
)

const stalenessWindow = 30 * time.Minute

// Listing is an observed marketplace snapshot of another agent's program.
type Listing struct {
	SellerPubkey string    `json:"seller_pubkey"`
	DTag         string    `json:"d_tag"`
	EventID      string    `json:"event_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Complexity   string    `json:"complexity"`
	Price        float64   `json:"price"`
	Preview      string    `json:"preview"`
	Quality      *float64  `json:"quality,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

// listingContent is the JSON shape published in a kind-30078 event's content.
type listingContent struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Version     string   `json:"version"`
	Category    string   `json:"category"`
	Complexity  string   `json:"complexity"`
	PriceSats   float64  `json:"price_sats"`
	Preview     string   `json:"preview"`
	Quality     *float64 `json:"quality_score,omitempty"`
}

// View is the in-memory listing accumulator for one agent.
type View struct {
	mu       sync.Mutex
	listings map[string]*Listing // keyed by d-tag
	selfPub  string
}

// NewView constructs an empty marketplace view for the agent with the given
// pubkey (used to exclude self-listings).
func NewView(selfPubkey string) *View {
	return &View{listings: make(map[string]*Listing), selfPub: selfPubkey}
}

// OnListing ingests a kind-30078 event, upserting by d-tag. Idempotent.
func (v *View) OnListing(ev *nostr.Event) error {
	dTag := ev.TagValue("d")
	if dTag == "" {
		return fmt.Errorf("listing event %s missing d-tag", ev.ID)
	}
	priceStr := ev.TagValue("price")

	var content listingContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		return fmt.Errorf("parse listing content: %w", err)
	}

	price := content.PriceSats
	if priceStr != "" {
		var parsed float64
		if _, err := fmt.Sscanf(priceStr, "%f", &parsed); err == nil {
			price = parsed
		}
	}

	listing := &Listing{
		SellerPubkey: ev.PubKey,
		DTag:         dTag,
		EventID:      ev.ID,
		Name:         content.Name,
		Description:  content.Description,
		Category:     content.Category,
		Complexity:   content.Complexity,
		Price:        price,
		Preview:      content.Preview,
		Quality:      content.Quality,
		ObservedAt:   time.Now(),
	}

	v.mu.Lock()
	v.listings[dTag] = listing
	v.mu.Unlock()
	return nil
}

// Delist removes a listing observed as deleted (a kind-5 deletion event).
func (v *View) Delist(dTag string) {
	v.mu.Lock()
	delete(v.listings, dTag)
	v.mu.Unlock()
}

// Seed inserts a pre-parsed listing directly, bypassing event ingestion.
// Used to repopulate a View from the on-disk Store after restart.
func (v *View) Seed(l *Listing) {
	v.mu.Lock()
	v.listings[l.DTag] = l
	v.mu.Unlock()
}

// Get returns the currently-tracked listing for dTag, if any.
func (v *View) Get(dTag string) (*Listing, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.listings[dTag]
	return l, ok
}

// BuyPredicate decides whether a listing clears the buy threshold. It is
// supplied by the strategy engine so marketplace stays decision-agnostic.
type BuyPredicate func(l *Listing) bool

// GetInterestingListings returns listings that are not our own, priced,
// fresh (<30min), and pass predicate.
func (v *View) GetInterestingListings(predicate BuyPredicate) []*Listing {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := time.Now().Add(-stalenessWindow)
	var out []*Listing
	for _, l := range v.listings {
		if l.SellerPubkey == v.selfPub {
			continue
		}
		if l.Price <= 0 {
			continue
		}
		if l.ObservedAt.Before(cutoff) {
			continue
		}
		if predicate != nil && !predicate(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// EvictStale removes listings older than the staleness window from the
// in-memory view. Nothing in the agent loop calls it; GetInterestingListings
// skips stale entries on its own.
func (v *View) EvictStale() {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := time.Now().Add(-stalenessWindow)
	for dTag, l := range v.listings {
		if l.ObservedAt.Before(cutoff) {
			delete(v.listings, dTag)
		}
	}
}

// Count returns the number of currently-tracked listings.
func (v *View) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listings)
}

// ProgramForListing is the minimal shape needed to publish a listing event.
type ProgramForListing struct {
	ID          string
	Name        string
	Description string
	Category    string
	Complexity  string
	PriceSats   float64
	Source      string
	Quality     *float64
}

// BuildListingEvent constructs the tags and content for publishing a
// kind-30078 listing, matching marketplace.py::publish_listing's shape.
// Callers sign and publish the returned (tags, content) pair.
func BuildListingEvent(p ProgramForListing) ([]nostr.Tag, string, error) {
	preview := p.Source
	if len(preview) > 500 {
		preview = preview[:500]
	}

	content := listingContent{
		Name:        p.Name,
		Description: p.Description,
		Language:    "go",
		Version:     "1",
		Category:    p.Category,
		Complexity:  p.Complexity,
		PriceSats:   p.PriceSats,
		Preview:     preview,
		Quality:     p.Quality,
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, "", fmt.Errorf("marshal listing content: %w", err)
	}

	tags := []nostr.Tag{
		{"d", p.ID},
		{"t", "go"},
		{"t", p.Category},
		{"price", fmt.Sprintf("%d", int64(p.PriceSats))},
	}
	if p.Quality != nil {
		tags = append(tags, nostr.Tag{"quality", fmt.Sprintf("%.2f", *p.Quality)})
	}

	return tags, string(contentJSON), nil
}
