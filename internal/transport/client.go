package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eatup/internal/bus"
	"eatup/internal/events"
)

const (
	// The backend expects a multi-second fixed retry interval, not
	// exponential backoff.
	DefaultReconnectDelay = 5 * time.Second

	// Heart-beats run in both directions so a dead connection is noticed
	// within a bounded window on either side.
	DefaultHeartbeat = 4 * time.Second

	handshakeTimeout = 10 * time.Second
	connectTimeout   = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// ErrNotConnected is returned by Publish while no live connection exists.
var ErrNotConnected = errors.New("transport is not connected")

// Handler receives the raw body of a MESSAGE frame for one destination.
type Handler func(body []byte)

// Options configures a broker client.
type Options struct {
	// URL is the websocket endpoint of the STOMP broker.
	URL string

	// Token is the session's bearer credential. Connecting without one is
	// refused: the backend rejects anonymous STOMP sessions anyway.
	Token string

	// Session names the owning scope in logs and status events, e.g.
	// "chat:Avondeten" or "notifications".
	Session string

	Logger *slog.Logger

	// Bus receives ConnectionStatus snapshots when set.
	Bus bus.MessageBus

	// OnConnect runs after every successful CONNECT handshake, once the
	// desired subscriptions have been re-established. Join signals go here.
	OnConnect func()

	ReconnectDelay time.Duration
	Heartbeat      time.Duration
}

type subscription struct {
	id      string
	handler Handler
}

// Client owns one live STOMP-over-websocket connection. It keeps retrying
// with a fixed delay until Disconnect and re-establishes its subscriptions
// after every reconnect. Connection errors are logged and reported on the
// bus, never returned to callers.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   events.ConnectionState
	subs    map[string]subscription
	started bool
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "transport")
	}
	logger = logger.With("session", opts.Session)

	return &Client{
		opts:   opts,
		logger: logger,
		state:  events.ConnectionStateDisconnected,
		subs:   make(map[string]subscription),
	}
}

// SetOnConnect installs the post-handshake hook. Must be called before
// Connect; later calls are ignored once the supervisor is running.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.logger.Debug("set on-connect ignored: already started")

		return
	}
	c.opts.OnConnect = fn
}

// Connect starts the connection supervisor. It is idempotent: calling it on
// an already-started client leaves the single existing connection in place.
// It returns before the connection is confirmed live; observe state through
// the bus or State().
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.Token == "" {
		return errors.New("missing bearer token")
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.logger.Debug("connect skipped: already started")

		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)

	return nil
}

// Subscribe registers interest in one destination. When the client is
// already connected the SUBSCRIBE frame goes out immediately; in any case
// the subscription survives reconnects. Handlers run on the read loop
// goroutine.
func (c *Client) Subscribe(destination string, handler Handler) {
	c.mu.Lock()
	if _, exists := c.subs[destination]; exists {
		c.mu.Unlock()
		c.logger.Debug("subscribe skipped: already subscribed", "destination", destination)

		return
	}
	sub := subscription{id: uuid.NewString(), handler: handler}
	c.subs[destination] = sub
	conn := c.conn
	connected := c.state == events.ConnectionStateConnected
	c.mu.Unlock()

	if connected {
		if err := c.writeSubscribe(conn, destination, sub.id); err != nil {
			c.logger.Warn("subscribe write failed", "destination", destination, "error", err)
		}
	}
}

// Publish sends a JSON payload to a destination. It fails synchronously
// with ErrNotConnected when no live connection exists; delivery itself is
// fire-and-forget, confirmations arrive as broadcast events.
func (c *Client) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode publish payload: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == events.ConnectionStateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	frame := NewFrame(CommandSend, body)
	frame.Headers[HeaderDestination] = destination
	frame.Headers[HeaderContentType] = "application/json"
	frame.Headers[HeaderContentLength] = fmt.Sprintf("%d", len(body))
	if err := c.writeFrame(conn, frame); err != nil {
		return fmt.Errorf("publish to %s: %w", destination, err)
	}
	c.logger.Debug("published", "destination", destination, "len", len(body))

	return nil
}

// Disconnect stops the supervisor and releases the connection along with
// all its subscriptions. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()

		return
	}
	c.started = false
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.conn = nil
	c.state = events.ConnectionStateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// Best effort: the broker cleans up the session either way.
		_ = c.writeFrame(conn, NewFrame(CommandDisconnect, nil))
		_ = conn.Close()
	}
	c.publishStatus(events.ConnectionStateDisconnected, nil)
	c.logger.Info("disconnected")
}

// State returns the current lifecycle state.
func (c *Client) State() events.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Client) run(ctx context.Context) {
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		c.setState(nil, events.ConnectionStateConnecting)
		c.publishStatus(events.ConnectionStateConnecting, nil)

		conn, err := c.dialAndHandshake(ctx)
		if err != nil {
			c.logger.Warn("connect failed", "error", err)
			c.setState(nil, events.ConnectionStateDisconnected)
			c.publishStatus(events.ConnectionStateDisconnected, err)
			if !sleepWithContext(ctx, c.opts.ReconnectDelay) {
				return
			}

			continue
		}

		c.setState(conn, events.ConnectionStateConnected)
		c.publishStatus(events.ConnectionStateConnected, nil)
		c.logger.Info("connected", "url", c.opts.URL)

		c.resubscribe(conn)
		if c.opts.OnConnect != nil {
			c.opts.OnConnect()
		}

		heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
		go c.runHeartbeat(heartbeatCtx, conn)
		err = c.readLoop(conn)
		stopHeartbeat()
		_ = conn.Close()
		c.setState(nil, events.ConnectionStateDisconnected)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost", "error", err)
		c.publishStatus(events.ConnectionStateDisconnected, err)
		if !sleepWithContext(ctx, c.opts.ReconnectDelay) {
			return
		}
	}
}

func (c *Client) dialAndHandshake(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	if err := c.stompConnect(conn); err != nil {
		_ = conn.Close()

		return nil, err
	}

	return conn, nil
}

func (c *Client) stompConnect(conn *websocket.Conn) error {
	heartbeatMillis := c.opts.Heartbeat.Milliseconds()
	frame := NewFrame(CommandConnect, nil)
	frame.Headers[HeaderAcceptVersion] = "1.1,1.2"
	frame.Headers[HeaderHost] = "/"
	frame.Headers[HeaderHeartBeat] = fmt.Sprintf("%d,%d", heartbeatMillis, heartbeatMillis)
	frame.Headers[HeaderAuthorization] = "Bearer " + c.opts.Token
	if err := c.writeFrame(conn, frame); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(connectTimeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await CONNECTED: %w", err)
		}
		if IsHeartbeat(raw) {
			continue
		}
		reply, err := Parse(raw)
		if err != nil {
			return fmt.Errorf("parse handshake reply: %w", err)
		}
		switch reply.Command {
		case CommandConnected:
			return nil
		case CommandError:
			return fmt.Errorf("broker rejected connect: %s", reply.Headers[HeaderMessage])
		default:
			return fmt.Errorf("unexpected handshake reply: %s", reply.Command)
		}
	}
}

func (c *Client) resubscribe(conn *websocket.Conn) {
	c.mu.Lock()
	desired := make(map[string]subscription, len(c.subs))
	for dest, sub := range c.subs {
		desired[dest] = sub
	}
	c.mu.Unlock()

	for dest, sub := range desired {
		if err := c.writeSubscribe(conn, dest, sub.id); err != nil {
			c.logger.Warn("resubscribe failed", "destination", dest, "error", err)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	// Any inbound traffic, heart-beats included, proves liveness.
	deadline := 3 * c.opts.Heartbeat
	for {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if IsHeartbeat(raw) {
			continue
		}

		frame, err := Parse(raw)
		if err != nil {
			c.logger.Warn("drop malformed frame", "error", err)

			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	switch frame.Command {
	case CommandMessage:
		handler := c.handlerFor(frame.Headers[HeaderDestination], frame.Headers[HeaderSubscription])
		if handler == nil {
			c.logger.Debug("no handler for message", "destination", frame.Headers[HeaderDestination])

			return
		}
		handler(frame.Body)
	case CommandError:
		// Broker-level error frames are reported, never thrown at callers.
		c.logger.Warn("broker error frame", "message", frame.Headers[HeaderMessage])
	case CommandReceipt:
		c.logger.Debug("receipt", "id", frame.Headers["receipt-id"])
	default:
		c.logger.Debug("ignoring frame", "command", string(frame.Command))
	}
}

func (c *Client) handlerFor(destination, subscriptionID string) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[destination]; ok {
		return sub.handler
	}
	for _, sub := range c.subs {
		if sub.id == subscriptionID {
			return sub.handler
		}
	}

	return nil
}

func (c *Client) runHeartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, Heartbeat)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("heartbeat write failed", "error", err)

				return
			}
		}
	}
}

func (c *Client) writeSubscribe(conn *websocket.Conn, destination, id string) error {
	frame := NewFrame(CommandSubscribe, nil)
	frame.Headers[HeaderID] = id
	frame.Headers[HeaderDestination] = destination
	if err := c.writeFrame(conn, frame); err != nil {
		return err
	}
	c.logger.Debug("subscribed", "destination", destination, "id", id)

	return nil
}

func (c *Client) writeFrame(conn *websocket.Conn, frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return conn.WriteMessage(websocket.TextMessage, Encode(frame))
}

func (c *Client) setState(conn *websocket.Conn, state events.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	c.state = state
}

func (c *Client) publishStatus(state events.ConnectionState, err error) {
	if c.opts.Bus == nil {
		return
	}
	status := events.ConnectionStatus{
		State:     state,
		Session:   c.opts.Session,
		Target:    c.opts.URL,
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	c.opts.Bus.Publish(events.TopicConnStatus, status)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
