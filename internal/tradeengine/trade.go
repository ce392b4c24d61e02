// Package tradeengine implements the bilateral trade state machine: both
// buyer and seller sides of an offer/accept/pay/deliver/complete exchange,
// with timeouts and trust accounting. Grounded on
// original_source/src/user/trade_engine.py.
package tradeengine

import "time"

// Role identifies which side of a trade this agent plays.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// State is one of the five (plus rejected) trade states.
type State string

const (
	StateOffered   State = "OFFERED"
	StateAccepted  State = "ACCEPTED"
	StatePaid      State = "PAID"
	StateDelivered State = "DELIVERED"
	StateComplete  State = "COMPLETE"
	StateRejected  State = "REJECTED"
)

const (
	offerTimeout    = 60 * time.Second
	paymentTimeout  = 120 * time.Second
	deliveryTimeout = 120 * time.Second
)

// Trade is one bilateral negotiation tracked by this agent.
type Trade struct {
	OfferID         string
	Role            Role
	State           State
	Counterparty    string
	ListingID       string
	Amount          int64
	StartedAt       time.Time
	Deadline        time.Time
	PaymentEventID  string
	DeliveryEventID string
}

// Snapshot is the persisted shape of a Trade for state.json.
type Snapshot struct {
	OfferID      string    `json:"offer_id"`
	Role         Role      `json:"role"`
	State        State     `json:"state"`
	Counterparty string    `json:"counterparty"`
	ListingID    string    `json:"listing_id"`
	Amount       int64     `json:"amount"`
	StartedAt    time.Time `json:"started_at"`
	Deadline     time.Time `json:"deadline"`
}

// ToSnapshot converts a Trade to its persisted form.
func (t *Trade) ToSnapshot() Snapshot {
	return Snapshot{
		OfferID:      t.OfferID,
		Role:         t.Role,
		State:        t.State,
		Counterparty: t.Counterparty,
		ListingID:    t.ListingID,
		Amount:       t.Amount,
		StartedAt:    t.StartedAt,
		Deadline:     t.Deadline,
	}
}

// FromSnapshot restores a Trade from its persisted form.
func FromSnapshot(s Snapshot) *Trade {
	return &Trade{
		OfferID:      s.OfferID,
		Role:         s.Role,
		State:        s.State,
		Counterparty: s.Counterparty,
		ListingID:    s.ListingID,
		Amount:       s.Amount,
		StartedAt:    s.StartedAt,
		Deadline:     s.Deadline,
	}
}
