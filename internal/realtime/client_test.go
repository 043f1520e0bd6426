package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// chatServer is a minimal in-process chat backend: it accepts the
// CONNECT handshake and records every frame it receives.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	dials        atomic.Int32
	connectDelay time.Duration

	mu     sync.Mutex
	frames []*Frame
	conn   *websocket.Conn
	auth   string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	s := &chatServer{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handle)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *chatServer) handle(w http.ResponseWriter, r *http.Request) {
	s.dials.Add(1)
	s.mu.Lock()
	s.auth = r.Header.Get("Authorization")
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	frame, err := DecodeFrame(data)
	if err != nil || frame.Type != FrameConnect {
		conn.Close()
		return
	}

	time.Sleep(s.connectDelay)
	ack, _ := (&Frame{Type: FrameConnected}).Encode()
	conn.WriteMessage(websocket.TextMessage, ack)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if frame, err := DecodeFrame(data); err == nil {
			s.mu.Lock()
			s.frames = append(s.frames, frame)
			s.mu.Unlock()
		}
	}
}

func (s *chatServer) push(destination string, body any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(s.t, conn)

	payload, err := json.Marshal(body)
	require.NoError(s.t, err)
	data, err := (&Frame{Type: FrameMessage, Destination: destination, Body: payload}).Encode()
	require.NoError(s.t, err)
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, data))
}

// framesOf returns the recorded frames of one type.
func (s *chatServer) framesOf(frameType string) []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Frame
	for _, f := range s.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

func (s *chatServer) waitFrames(frameType string, n int) []*Frame {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := s.framesOf(frameType); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %d %s frames", n, frameType)
	return nil
}

func testChatConfig(baseURL string) *config.ChatConfig {
	return &config.ChatConfig{
		BaseURL:        baseURL,
		WSPath:         "/ws",
		ReconnectDelay: 10 * time.Millisecond,
		Heartbeat:      100 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, srv *chatServer) *Client {
	t.Helper()
	client := NewClient(testChatConfig(srv.srv.URL), logger.NewNop())
	t.Cleanup(client.Disconnect)
	return client
}

func TestConnect_HandshakeAndAutoSubscribe(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	assert.Equal(t, StateConnected, client.State())

	srv.mu.Lock()
	auth := srv.auth
	srv.mu.Unlock()
	assert.Equal(t, "Bearer t1", auth)

	subs := srv.waitFrames(FrameSubscribe, 1)
	assert.Equal(t, "/topic/user/u1/matches", subs[0].Destination)
}

func TestConnect_ConcurrentCallersShareOneAttempt(t *testing.T) {
	srv := newChatServer(t)
	srv.connectDelay = 50 * time.Millisecond
	client := newTestClient(t, srv)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Connect(context.Background(), "u1", "t1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), srv.dials.Load())
	assert.Equal(t, StateConnected, client.State())
}

func TestConnect_AlreadyConnectedIsNoOp(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	assert.Equal(t, int32(1), srv.dials.Load())
}

func TestConnect_DialFailureAfterRetry(t *testing.T) {
	srv := newChatServer(t)
	url := srv.srv.URL
	srv.srv.Close()

	client := NewClient(testChatConfig(url), logger.NewNop())
	err := client.Connect(context.Background(), "u1", "t1")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestConnect_RecoversAfterServerDrop(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))

	// Server kills the connection right after the handshake; the client
	// must settle on Disconnected, never wedge on a stale Connected.
	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	require.NotNil(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for client.State() != StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatal("client never observed the drop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A later Connect starts a fresh session.
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	assert.Equal(t, StateConnected, client.State())
}

func TestSubscribe_DuplicateIsNoOp(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	srv.waitFrames(FrameSubscribe, 1)

	handler := func(json.RawMessage) {}
	assert.True(t, client.Subscribe("/topic/chat/42", handler))
	assert.True(t, client.Subscribe("/topic/chat/42", handler))

	// Auto match subscription plus exactly one for the chat topic.
	time.Sleep(50 * time.Millisecond)
	var chatSubs int
	for _, f := range srv.framesOf(FrameSubscribe) {
		if f.Destination == "/topic/chat/42" {
			chatSubs++
		}
	}
	assert.Equal(t, 1, chatSubs)
}

func TestSubscribe_CallbackBoundAtSubscribeTime(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	srv.waitFrames(FrameSubscribe, 1)

	received := make(chan json.RawMessage, 1)
	require.True(t, client.Subscribe("/topic/chat/42", func(body json.RawMessage) {
		received <- body
	}))

	srv.push("/topic/chat/42", map[string]string{"text": "hi"})

	select {
	case body := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "hi", payload["text"])
	case <-time.After(2 * time.Second):
		t.Fatal("subscription callback never fired")
	}
}

func TestSubscribe_FirstBindingWins(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	srv.waitFrames(FrameSubscribe, 1)

	first := make(chan json.RawMessage, 1)
	second := make(chan json.RawMessage, 1)
	require.True(t, client.Subscribe("/topic/chat/42", func(body json.RawMessage) { first <- body }))
	// Rebinding an already subscribed destination is a no-op.
	require.True(t, client.Subscribe("/topic/chat/42", func(body json.RawMessage) { second <- body }))

	srv.push("/topic/chat/42", map[string]string{"text": "hi"})

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("original handler never fired")
	}
	select {
	case <-second:
		t.Fatal("second handler fired despite no-op subscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribe_WhileDisconnected(t *testing.T) {
	client := NewClient(testChatConfig("http://127.0.0.1:0"), logger.NewNop())
	assert.False(t, client.Subscribe("/topic/chat/42", func(json.RawMessage) {}))
}

func TestSend_ReportsDelivery(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	assert.False(t, client.Send("/app/chat/42", map[string]string{"text": "hi"}))

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	assert.True(t, client.Send("/app/chat/42", map[string]string{"text": "hi"}))

	sends := srv.waitFrames(FrameSend, 1)
	assert.Equal(t, "/app/chat/42", sends[0].Destination)
	assert.NotEmpty(t, sends[0].ID)

	var body map[string]string
	require.NoError(t, json.Unmarshal(sends[0].Body, &body))
	assert.Equal(t, "hi", body["text"])
}

func TestDispatch_RoutesMessagesToHandler(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	received := make(chan json.RawMessage, 1)
	client.RegisterCallback("match", func(body json.RawMessage) {
		received <- body
	})

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	srv.waitFrames(FrameSubscribe, 1)

	srv.push("/topic/user/u1/matches", map[string]string{"matchId": "m1"})

	select {
	case body := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "m1", payload["matchId"])
	case <-time.After(2 * time.Second):
		t.Fatal("match callback never fired")
	}
}

func TestDispatch_UnsubscribedDestinationDropped(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	received := make(chan json.RawMessage, 1)
	client.RegisterCallback("chat", func(body json.RawMessage) {
		received <- body
	})

	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	srv.waitFrames(FrameSubscribe, 1)

	srv.push("/topic/chat/99", map[string]string{"text": "stray"})

	select {
	case <-received:
		t.Fatal("handler fired for unsubscribed destination")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnect_FullReset(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)

	client.RegisterCallback("match", func(json.RawMessage) {})
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	require.True(t, client.Subscribe("/topic/chat/42", func(json.RawMessage) {}))

	client.Disconnect()

	assert.Equal(t, StateDisconnected, client.State())
	assert.False(t, client.Send("/app/chat/42", map[string]string{"text": "hi"}))
	assert.False(t, client.Subscribe("/topic/chat/42", func(json.RawMessage) {}))

	// A fresh connect starts clean and resubscribes only the match topic.
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))
	assert.Equal(t, StateConnected, client.State())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	srv := newChatServer(t)
	client := newTestClient(t, srv)
	require.NoError(t, client.Connect(context.Background(), "u1", "t1"))

	require.True(t, client.Subscribe("/topic/chat/42", func(json.RawMessage) {}))
	client.Unsubscribe("/topic/chat/42")
	client.Unsubscribe("/topic/chat/42")

	frames := srv.waitFrames(FrameUnsubscribe, 1)
	assert.Len(t, frames, 1)
}
