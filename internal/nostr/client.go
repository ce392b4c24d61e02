package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zap-empire/zapempire/pkg/logging"
)

const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	seenIDCap             = 10000
)

// Filter describes a relay subscription filter.
type Filter struct {
	Kinds   []int               `json:"kinds,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   int64               `json:"since,omitempty"`
}

// MarshalJSON flattens Tags into the "#p"/"#e"-style keys NIP filters use.
func (f Filter) MarshalJSON() ([]byte, error) {
	raw := map[string]interface{}{}
	if len(f.Kinds) > 0 {
		raw["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		raw["authors"] = f.Authors
	}
	if f.Since > 0 {
		raw["since"] = f.Since
	}
	for name, values := range f.Tags {
		raw["#"+name] = values
	}
	return json.Marshal(raw)
}

// IncomingEvent pairs a subscription id with the event it matched.
type IncomingEvent struct {
	SubID string
	Event *Event
}

// Client is a reconnecting relay client. It maintains one long-lived
// WebSocket connection, transparently reconnects with capped exponential
// backoff, re-establishes subscriptions on reconnect, and deduplicates
// incoming event ids.
type Client struct {
	url string
	log *logging.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string][]Filter
	subOrd  []string // subscription registration order, for deterministic re-send
	seen    map[string]struct{}
	seenOrd []string

	events  chan IncomingEvent
	closing chan struct{}
	closed  bool
}

// NewClient constructs a relay client for the given websocket URL.
func NewClient(url string, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Default()
	}
	return &Client{
		url:     url,
		log:     log.Component("nostr"),
		subs:    make(map[string][]Filter),
		seen:    make(map[string]struct{}),
		events:  make(chan IncomingEvent, 256),
		closing: make(chan struct{}),
	}
}

// Connect dials the relay and starts the background read/reconnect loop.
// Connect returns once the initial connection succeeds or the context is
// cancelled; subsequent disconnects are retried transparently in the
// background.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.readLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected to relay", "url", c.url)
	return nil
}

// readLoop owns the connection's lifetime: it reads frames until the
// connection breaks, then reconnects with backoff and re-subscribes.
func (c *Client) readLoop(ctx context.Context) {
	delay := reconnectInitialDelay
	for {
		select {
		case <-c.closing:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if err := c.dial(ctx); err != nil {
				c.log.Warn("reconnect failed", "error", err, "retry_in", delay)
				if !c.sleep(ctx, delay) {
					return
				}
				delay = nextDelay(delay)
				continue
			}
			delay = reconnectInitialDelay
			c.resubscribeAll()
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("relay connection lost", "error", err)
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			if !c.sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		c.handleFrame(data)
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-c.closing:
		return false
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Warn("malformed frame", "error", err)
		return
	}
	if len(frame) == 0 {
		return
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			c.log.Warn("malformed event", "error", err)
			return
		}
		if c.markSeen(ev.ID) {
			return // duplicate, drop
		}
		select {
		case c.events <- IncomingEvent{SubID: subID, Event: &ev}:
		case <-c.closing:
		}
	case "OK", "EOSE", "NOTICE":
		// Acknowledged, not acted on by the caller; logged at debug level.
		c.log.Debug("relay frame", "type", label)
	}
}

// markSeen records id in the bounded dedup window and reports whether it was
// already present.
func (c *Client) markSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}
	c.seen[id] = struct{}{}
	c.seenOrd = append(c.seenOrd, id)
	if len(c.seenOrd) > seenIDCap {
		half := len(c.seenOrd) / 2
		for _, old := range c.seenOrd[:half] {
			delete(c.seen, old)
		}
		c.seenOrd = append([]string{}, c.seenOrd[half:]...)
	}
	return false
}

// Listen returns the channel of incoming, deduplicated events.
func (c *Client) Listen() <-chan IncomingEvent {
	return c.events
}

// Publish sends an EVENT frame. It does not retry on failure; callers retry
// at the application layer.
func (c *Client) Publish(ev *Event) error {
	frame := []interface{}{"EVENT", ev}
	return c.send(frame)
}

// Subscribe registers filters under subID and sends the REQ frame. On
// reconnect, all registered subscriptions are re-sent in registration order.
func (c *Client) Subscribe(subID string, filters ...Filter) error {
	c.mu.Lock()
	if _, exists := c.subs[subID]; !exists {
		c.subOrd = append(c.subOrd, subID)
	}
	c.subs[subID] = filters
	c.mu.Unlock()

	return c.sendSubscribe(subID, filters)
}

func (c *Client) sendSubscribe(subID string, filters []Filter) error {
	frame := []interface{}{"REQ", subID}
	for _, f := range filters {
		frame = append(frame, f)
	}
	return c.send(frame)
}

// Unsubscribe removes the subscription and sends a CLOSE frame.
func (c *Client) Unsubscribe(subID string) error {
	c.mu.Lock()
	delete(c.subs, subID)
	for i, id := range c.subOrd {
		if id == subID {
			c.subOrd = append(c.subOrd[:i], c.subOrd[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	return c.send([]interface{}{"CLOSE", subID})
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	order := append([]string{}, c.subOrd...)
	c.mu.Unlock()

	for _, subID := range order {
		c.mu.Lock()
		filters := c.subs[subID]
		c.mu.Unlock()
		if err := c.sendSubscribe(subID, filters); err != nil {
			c.log.Warn("resubscribe failed", "sub_id", subID, "error", err)
		}
	}
}

func (c *Client) send(frame interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect closes the connection and stops the reconnect loop.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.closing)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
