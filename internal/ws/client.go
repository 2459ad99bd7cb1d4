package ws

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is the externally observable connection lifecycle. It is governed
// solely by the client; callers observe it via OnStatus.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Config holds connection settings for one session's real-time channel.
type Config struct {
	// URL is the session-scoped websocket endpoint.
	URL string
	// Token is attached to the connection URI as a bearer token.
	Token string

	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int

	Dialer *websocket.Dialer
	Clock  clockwork.Clock
	Logger zerolog.Logger

	// Jitter overrides the random component of the backoff; tests pin it.
	Jitter func(max time.Duration) time.Duration
}

// DefaultConfig returns production connection settings for url/token.
func DefaultConfig(url, token string) Config {
	return Config{
		URL:         url,
		Token:       token,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxAttempts: 5,
	}
}

// Client maintains at most one live websocket connection per session and
// delivers classified inbound messages to subscribers. Abnormal closures
// trigger exponential-backoff reconnects; Close is the only path that
// prevents auto-reconnect.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	clock  clockwork.Clock
	log    zerolog.Logger
	jitter func(max time.Duration) time.Duration

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connID         string
	ctx            context.Context
	attempts       int
	reconnectTimer clockwork.Timer
	closed         bool

	// queued state transitions, drained in order by a single goroutine
	stateQueue []State
	notifying  bool

	nextSubID  int
	statusSubs map[int]func(State)
	msgSubs    map[int]func(Message)
	errSubs    map[int]func(error)
}

// NewClient builds a client in the disconnected state.
func NewClient(cfg Config) *Client {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		}
	}
	return &Client{
		cfg:        cfg,
		dialer:     dialer,
		clock:      clock,
		log:        cfg.Logger,
		jitter:     jitter,
		state:      StateDisconnected,
		statusSubs: make(map[int]func(State)),
		msgSubs:    make(map[int]func(Message)),
		errSubs:    make(map[int]func(error)),
	}
}

// Connect opens the connection. It is idempotent: a no-op while a connection
// is open or opening. Calling it after a terminal failure starts a fresh
// attempt budget.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected || c.state == StateReconnecting {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.attempts = 0
	c.ctx = ctx
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.connectURL(), nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		c.log.Warn().Err(err).Int("attempt", c.attempts).Msg("ws dial failed")
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.notifyError(err)
		return err
	}
	c.conn = conn
	c.connID = uuid.New().String()
	c.attempts = 0
	c.setStateLocked(StateConnected)
	connID := c.connID
	c.mu.Unlock()

	c.log.Info().Str("connection_id", connID).Msg("ws connected")
	go c.readLoop(conn)
	return nil
}

// connectURL appends the auth token to the configured endpoint.
func (c *Client) connectURL() string {
	if c.cfg.Token == "" {
		return c.cfg.URL
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		msg, ok := Classify(raw)
		if !ok {
			// Malformed payloads never reach subscribers.
			c.log.Warn().Bytes("payload", raw).Msg("dropping malformed ws message")
			continue
		}
		if msg.Kind == KindLobby && msg.Name == "ping" {
			continue
		}
		c.notifyMessage(msg)
	}
}

func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection replaced this one; nothing to do.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	conn.Close()

	if c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return
	}

	c.log.Warn().Err(err).Msg("ws closed abnormally")
	c.setStateLocked(StateDisconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	c.notifyError(err)
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// transitions to the terminal failed state once the budget is spent.
func (c *Client) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > c.cfg.MaxAttempts {
		c.log.Error().Int("attempts", c.attempts-1).Msg("ws reconnect budget exhausted")
		c.setStateLocked(StateFailed)
		return
	}
	delay := c.backoffDelay(c.attempts)
	c.setStateLocked(StateReconnecting)
	c.log.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("ws reconnect scheduled")

	ctx := c.ctx
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		_ = c.dial(ctx)
	})
}

// backoffDelay doubles the base interval per attempt, plus up to half the
// interval of random jitter. MaxBackoff caps the final delay, jitter included.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.MaxBackoff {
			delay = c.cfg.MaxBackoff
			break
		}
	}
	delay += c.jitter(delay / 2)
	if delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	return delay
}

// Close requests a normal closure: the pending reconnect timer is cancelled,
// the connection closed, and no auto-reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateDisconnected)
	return nil
}

// Send writes a JSON payload to the live connection.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(v)
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts reports the consecutive failed reconnect attempts so far.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// setStateLocked records the transition and queues the status notification.
// Listeners observe transitions in the order they happened: one drain
// goroutine at a time works the queue.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.stateQueue = append(c.stateQueue, s)
	if c.notifying {
		return
	}
	c.notifying = true
	go c.drainStateQueue()
}

func (c *Client) drainStateQueue() {
	for {
		c.mu.Lock()
		if len(c.stateQueue) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		s := c.stateQueue[0]
		c.stateQueue = c.stateQueue[1:]
		subs := make([]func(State), 0, len(c.statusSubs))
		for _, fn := range c.statusSubs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(s)
		}
	}
}

func (c *Client) notifyMessage(msg Message) {
	c.mu.Lock()
	subs := make([]func(Message), 0, len(c.msgSubs))
	for _, fn := range c.msgSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (c *Client) notifyError(err error) {
	c.mu.Lock()
	subs := make([]func(error), 0, len(c.errSubs))
	for _, fn := range c.errSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

// OnStatus registers a listener for state changes and returns its
// de-registration handle.
func (c *Client) OnStatus(fn func(State)) func() {
	return c.subscribe(func(id int) { c.statusSubs[id] = fn }, func(id int) { delete(c.statusSubs, id) })
}

// OnMessage registers a listener for classified inbound messages.
func (c *Client) OnMessage(fn func(Message)) func() {
	return c.subscribe(func(id int) { c.msgSubs[id] = fn }, func(id int) { delete(c.msgSubs, id) })
}

// OnError registers a listener for dial and read failures.
func (c *Client) OnError(fn func(error)) func() {
	return c.subscribe(func(id int) { c.errSubs[id] = fn }, func(id int) { delete(c.errSubs, id) })
}

func (c *Client) subscribe(add func(id int), remove func(id int)) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	add(id)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		remove(id)
		c.mu.Unlock()
	}
}
