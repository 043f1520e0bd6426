package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler consumes the body of a routed message.
type Handler func(body json.RawMessage)

// connectAttempt is the shared outcome of an in-flight connect: every
// caller that arrives while it is pending waits on done and reads err.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client maintains one websocket connection to the chat service and
// routes incoming frames by destination to registered event handlers.
//
// Concurrency contract: at most one physical connection ever exists.
// Concurrent Connect calls coalesce onto a single attempt and all
// observe its outcome.
type Client struct {
	cfg *config.ChatConfig
	log logger.Logger

	// dial is swappable in tests.
	dial func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt *connectAttempt
	done    chan struct{}
	userID  string

	// subs maps destination to the handler bound at subscribe time.
	// callbacks is the coarser event-name table; a subscription can route
	// into it via eventHandler.
	subs      map[string]Handler
	callbacks map[string]Handler

	writeMu sync.Mutex
}

// NewClient creates a disconnected chat client.
func NewClient(cfg *config.ChatConfig, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log.With(logger.Component("realtime")),
		dial: func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			return conn, err
		},
		subs:      make(map[string]Handler),
		callbacks: make(map[string]Handler),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the websocket session for userID, authenticating
// with token. Calling while connected is a no-op; calling while a
// connect is already in flight joins that attempt instead of starting a
// second one. On success the client is subscribed to the user's match
// notifications.
func (c *Client) Connect(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return errors.Wrap(errors.ErrValidation, "user id and token are required")
	}

	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		attempt := c.attempt
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := &connectAttempt{done: make(chan struct{})}
	c.attempt = attempt
	c.state = StateConnecting
	c.userID = userID
	c.mu.Unlock()

	err := c.establish(ctx, userID, token)

	// establish moves the state to Connected itself, under the same lock
	// that installs the connection, so a drop arriving right after the
	// handshake is never overwritten back to Connected here.
	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
	}
	c.attempt = nil
	attempt.err = err
	close(attempt.done)
	c.mu.Unlock()

	if err == nil {
		// Every connected session listens for its own match events,
		// routed through the event-name table.
		c.Subscribe(matchTopic(userID), c.eventHandler("match"))
	}
	return err
}

func matchTopic(userID string) string {
	return "/topic/user/" + userID + "/matches"
}

// establish dials, performs the CONNECT handshake, and starts the
// reader and heartbeat goroutines. A dial failure is retried once after
// the reconnect delay before giving up.
func (c *Client) establish(ctx context.Context, userID, token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	wsURL := c.cfg.WSURL()
	conn, err := c.dial(ctx, wsURL, header)
	if err != nil {
		c.log.Warn("dial failed, retrying once",
			logger.URL(wsURL), logger.Error(err))
		select {
		case <-time.After(c.cfg.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		conn, err = c.dial(ctx, wsURL, header)
		if err != nil {
			return errors.Wrap(errors.ErrNetwork, "chat dial failed: "+err.Error())
		}
	}

	body, _ := json.Marshal(map[string]string{"userId": userID})
	connect := &Frame{Type: FrameConnect, ID: uuid.NewString(), Body: body}
	if err := writeFrame(conn, connect); err != nil {
		conn.Close()
		return errors.Wrap(errors.ErrNetwork, "connect frame failed: "+err.Error())
	}

	conn.SetReadDeadline(time.Now().Add(3 * c.cfg.Heartbeat))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return errors.Wrap(errors.ErrNetwork, "no connect acknowledgement: "+err.Error())
	}
	ack, err := DecodeFrame(data)
	if err != nil || ack.Type != FrameConnected {
		conn.Close()
		if err == nil && ack.Type == FrameError {
			return errors.Wrap(errors.ErrInvalidCredentials, ack.Message)
		}
		return errors.Wrap(errors.ErrInvalidResponse, "unexpected handshake frame")
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.heartbeat(conn, done)

	c.log.Info("chat connected", logger.UserID(userID))
	return nil
}

// Subscribe registers a destination with the handler its messages
// dispatch to. Subscribing twice to the same destination is a no-op and
// keeps the first handler; subscribing while disconnected only logs.
func (c *Client) Subscribe(destination string, handler Handler) bool {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		c.log.Warn("subscribe while disconnected ignored",
			logger.Destination(destination))
		return false
	}
	if _, exists := c.subs[destination]; exists {
		c.mu.Unlock()
		return true
	}
	c.subs[destination] = handler
	conn := c.conn
	c.mu.Unlock()

	frame := &Frame{Type: FrameSubscribe, ID: uuid.NewString(), Destination: destination}
	if err := c.safeWrite(conn, frame); err != nil {
		c.log.Warn("subscribe failed", logger.Destination(destination), logger.Error(err))
		c.mu.Lock()
		delete(c.subs, destination)
		c.mu.Unlock()
		return false
	}

	c.log.Debug("subscribed", logger.Destination(destination))
	return true
}

// eventHandler returns a handler that routes through the event-name
// table, resolving the callback at dispatch time so RegisterCallback
// works before or after the subscription exists.
func (c *Client) eventHandler(event string) Handler {
	return func(body json.RawMessage) {
		c.mu.Lock()
		handler := c.callbacks[event]
		c.mu.Unlock()
		if handler == nil {
			c.log.Debug("no handler for event", logger.Event(event))
			return
		}
		handler(body)
	}
}

// Unsubscribe removes a destination. Unknown destinations are ignored.
func (c *Client) Unsubscribe(destination string) {
	c.mu.Lock()
	_, exists := c.subs[destination]
	delete(c.subs, destination)
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !exists || !connected {
		return
	}
	frame := &Frame{Type: FrameUnsubscribe, ID: uuid.NewString(), Destination: destination}
	if err := c.safeWrite(conn, frame); err != nil {
		c.log.Warn("unsubscribe failed", logger.Destination(destination), logger.Error(err))
	}
}

// RegisterCallback installs the handler for an event name. Messages for
// events with no handler are dropped with a debug log.
func (c *Client) RegisterCallback(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[event] = handler
}

// UnregisterCallback removes the handler for an event name.
func (c *Client) UnregisterCallback(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.callbacks, event)
}

// Send delivers body to a destination. Reports whether the frame was
// handed to the transport; a false return means the message was not
// sent (disconnected, or a write failure).
func (c *Client) Send(destination string, body any) bool {
	payload, err := json.Marshal(body)
	if err != nil {
		c.log.Warn("unencodable message dropped", logger.Destination(destination), logger.Error(err))
		return false
	}

	c.mu.Lock()
	connected := c.state == StateConnected
	conn := c.conn
	c.mu.Unlock()
	if !connected {
		c.log.Warn("send while disconnected dropped", logger.Destination(destination))
		return false
	}

	frame := &Frame{Type: FrameSend, ID: uuid.NewString(), Destination: destination, Body: payload}
	if err := c.safeWrite(conn, frame); err != nil {
		c.log.Warn("send failed", logger.Destination(destination), logger.Error(err))
		return false
	}
	return true
}

// Disconnect tears the session down and resets all client state:
// connection, subscriptions, and callbacks. Safe to call at any time.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.done = nil
	c.state = StateDisconnected
	c.userID = ""
	c.subs = make(map[string]Handler)
	c.callbacks = make(map[string]Handler)
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.log.Info("chat disconnected")
}

// readLoop is the single reader for a connection: it owns ReadMessage
// and dispatches routed frames until the connection dies.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * c.cfg.Heartbeat))
	})
	conn.SetReadDeadline(time.Now().Add(3 * c.cfg.Heartbeat))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.log.Warn("connection lost", logger.Error(err))
				c.markDropped(conn)
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.log.Warn("undecodable frame dropped", logger.Error(err))
			continue
		}

		switch frame.Type {
		case FrameMessage:
			c.dispatch(frame)
		case FrameError:
			c.log.Warn("server error frame", logger.String("message", frame.Message))
		}
	}
}

// dispatch routes a MESSAGE frame to the handler bound to its
// destination.
func (c *Client) dispatch(frame *Frame) {
	c.mu.Lock()
	handler, subscribed := c.subs[frame.Destination]
	c.mu.Unlock()

	if !subscribed {
		c.log.Debug("message for unknown destination dropped",
			logger.Destination(frame.Destination))
		return
	}
	if handler == nil {
		c.log.Debug("subscription has no handler",
			logger.Destination(frame.Destination))
		return
	}
	handler(frame.Body)
}

// markDropped records an unexpected connection loss. Subscriptions and
// callbacks survive so a later Connect restores routing after the
// caller resubscribes.
func (c *Client) markDropped(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.done = nil
		c.state = StateDisconnected
		c.subs = make(map[string]Handler)
	}
	c.mu.Unlock()
	conn.Close()
}

// heartbeat pings on an interval; the pong handler in readLoop extends
// the read deadline.
func (c *Client) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// safeWrite serializes writers onto the connection.
func (c *Client) safeWrite(conn *websocket.Conn, frame *Frame) error {
	if conn == nil {
		return errors.ErrNetwork
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(conn, frame)
}

func writeFrame(conn *websocket.Conn, frame *Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
