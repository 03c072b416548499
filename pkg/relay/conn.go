package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nostrrepos/pkg/fanout"
	"nostrrepos/pkg/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultWriteTimeout applies to frames written without a context deadline
	DefaultWriteTimeout = 10 * time.Second

	// subscriptionBuffer is the number of records a subscription holds
	// before the read loop waits on the consumer.
	subscriptionBuffer = 64
)

// Conn is one websocket connection to a relay speaking NIP-01. Many
// subscriptions share the connection; a single read loop demultiplexes
// frames to them by subscription id.
type Conn struct {
	url    string
	ws     *websocket.Conn
	logger *zap.Logger

	// writeLock is a one-slot semaphore so writers can give up on ctx
	writeLock chan struct{}

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool

	closing     chan struct{}
	closingOnce sync.Once
	done        chan struct{}
	closeOnce   sync.Once
}

var _ fanout.Endpoint = (*Conn)(nil)

// Dial connects to the relay at url
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", url, err)
	}

	c := &Conn{
		url:       url,
		ws:        ws,
		logger:    logger.With(zap.String("relay", url)),
		subs:      make(map[string]*subscription),
		writeLock: make(chan struct{}, 1),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *Conn) URL() string {
	return c.url
}

// Alive reports whether the read loop is still running
func (c *Conn) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Done is closed once the connection has shut down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Subscribe sends a REQ for filter and returns the subscription that will
// receive the matching records.
func (c *Conn) Subscribe(ctx context.Context, filter types.Filter) (fanout.Subscription, error) {
	sub := &subscription{
		id:      uuid.NewString(),
		conn:    c,
		records: make(chan types.Record, subscriptionBuffer),
		stopped: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("relay %s: connection closed", c.url)
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if err := c.writeJSON(ctx, []interface{}{"REQ", sub.id, filter}); err != nil {
		c.forget(sub.id)
		return nil, fmt.Errorf("relay %s: failed to send REQ: %w", c.url, err)
	}

	c.logger.Debug("Subscribed", zap.String("sub", sub.id))
	return sub, nil
}

// Close shuts the connection down. Open subscriptions see end-of-stream.
func (c *Conn) Close() error {
	c.closingOnce.Do(func() { close(c.closing) })

	lockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	if c.lockWrite(lockCtx) == nil {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.unlockWrite()
	}
	cancel()

	c.ws.Close()
	<-c.done
	return nil
}

func (c *Conn) writeJSON(ctx context.Context, v interface{}) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}

	if err := c.lockWrite(ctx); err != nil {
		return err
	}
	defer c.unlockWrite()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// lockWrite waits for exclusive write access or until ctx is done
func (c *Conn) lockWrite(ctx context.Context) error {
	select {
	case c.writeLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) unlockWrite() {
	<-c.writeLock
}

func (c *Conn) lookup(id string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[id]
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

// readLoop owns every subscription's records channel: only this goroutine
// sends on or closes them.
func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Relay connection lost", zap.Error(err))
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		c.logger.Debug("Ignoring malformed frame", zap.ByteString("frame", data))
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
		var id string
		var r types.Record
		if json.Unmarshal(frame[1], &id) != nil {
			return
		}
		if err := json.Unmarshal(frame[2], &r); err != nil {
			c.logger.Debug("Ignoring malformed event", zap.Error(err))
			return
		}
		if sub := c.lookup(id); sub != nil {
			sub.deliver(r, c.closing)
		}

	case "EOSE":
		var id string
		if json.Unmarshal(frame[1], &id) != nil {
			return
		}
		if sub := c.lookup(id); sub != nil {
			c.forget(id)
			sub.finish()
		}

	case "CLOSED":
		var id, reason string
		if json.Unmarshal(frame[1], &id) != nil {
			return
		}
		if len(frame) > 2 {
			_ = json.Unmarshal(frame[2], &reason)
		}
		if sub := c.lookup(id); sub != nil {
			c.logger.Debug("Relay closed subscription",
				zap.String("sub", id),
				zap.String("reason", reason))
			c.forget(id)
			sub.finish()
		}

	case "NOTICE":
		var msg string
		_ = json.Unmarshal(frame[1], &msg)
		c.logger.Debug("Relay notice", zap.String("message", msg))
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*subscription)
		c.closed = true
		c.mu.Unlock()

		for _, sub := range subs {
			sub.finish()
		}
		c.ws.Close()
		close(c.done)
	})
}

type subscription struct {
	id      string
	conn    *Conn
	records chan types.Record

	stopped  chan struct{}
	stopOnce sync.Once

	finishOnce sync.Once
}

func (s *subscription) Records() <-chan types.Record {
	return s.records
}

// Stop unregisters the subscription and sends CLOSE in the background.
func (s *subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.conn.forget(s.id)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
			defer cancel()
			if err := s.conn.writeJSON(ctx, []interface{}{"CLOSE", s.id}); err != nil {
				s.conn.logger.Debug("Failed to send CLOSE",
					zap.String("sub", s.id),
					zap.Error(err))
			}
		}()
	})
}

func (s *subscription) deliver(r types.Record, closing <-chan struct{}) {
	select {
	case s.records <- r:
	case <-s.stopped:
	case <-closing:
	}
}

func (s *subscription) finish() {
	s.finishOnce.Do(func() {
		close(s.records)
	})
}
