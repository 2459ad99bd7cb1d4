package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		wantKind MessageKind
		wantName string
		wantOK   bool
	}{
		{"game question", `{"type":"question","index":2}`, KindGame, "question", true},
		{"game complete", `{"type":"complete"}`, KindGame, "complete", true},
		{"lobby join", `{"event":"player-joined","players":[]}`, KindLobby, "player-joined", true},
		{"lobby countdown", `{"event":"session-countdown"}`, KindLobby, "session-countdown", true},
		{"missing discriminator", `{"foo":"bar"}`, "", "", false},
		{"not json", `{{{`, "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := Classify([]byte(tc.payload))
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if !ok {
				return
			}
			if msg.Kind != tc.wantKind || msg.Name != tc.wantName {
				t.Fatalf("expected %s/%s, got %s/%s", tc.wantKind, tc.wantName, msg.Kind, msg.Name)
			}
		})
	}
}

func TestConnectDeliversClassifiedMessages(t *testing.T) {
	var gotToken string
	server := newStubServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"question","index":0}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not even json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"player-joined"}`))
		// keep the connection open until the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(server.URL, "secret-token"))
	defer client.Close()

	received := make(chan Message, 8)
	unsub := client.OnMessage(func(m Message) { received <- m })
	defer unsub()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if state := client.State(); state != StateConnected {
		t.Fatalf("expected connected, got %s", state)
	}

	first := nextMessage(t, received)
	if first.Kind != KindGame || first.Name != GameEventQuestion {
		t.Fatalf("expected game/question first, got %s/%s", first.Kind, first.Name)
	}
	// Malformed payload and keep-alive ping are dropped; next is the lobby event.
	second := nextMessage(t, received)
	if second.Kind != KindLobby || second.Name != LobbyPlayerJoined {
		t.Fatalf("expected lobby/player-joined, got %s/%s", second.Kind, second.Name)
	}

	if gotToken != "secret-token" {
		t.Fatalf("expected auth token in connection URI, got %q", gotToken)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	dials := 0
	var mu sync.Mutex
	server := newStubServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(server.URL, ""))
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
}

func TestAbnormalCloseReconnects(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	server := newStubServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			// Drop the TCP connection without a close frame: abnormal closure (1006).
			conn.UnderlyingConn().Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(server.URL, ""))
	defer client.Close()

	var statesMu sync.Mutex
	var states []State
	unsub := client.OnStatus(func(s State) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})
	defer unsub()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitState(t, client, StateConnected, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return conns >= 2
	})

	if got := client.Attempts(); got != 0 {
		t.Fatalf("expected attempt counter reset after reconnect, got %d", got)
	}

	// Notifications are queued and drained in order, so listeners must see
	// the lifecycle as it happened. Delivery is asynchronous; poll for it.
	want := []State{StateConnected, StateDisconnected, StateReconnecting, StateConnected}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statesMu.Lock()
		ok := hasStateSubsequence(states, want)
		statesMu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	statesMu.Lock()
	defer statesMu.Unlock()
	t.Fatalf("expected ordered state subsequence %v, observed %v", want, states)
}

func TestReconnectBudgetExhaustedIsTerminal(t *testing.T) {
	server := newStubServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.UnderlyingConn().Close()
	})
	serverURL := server.URL
	server.Close() // nothing is listening: every dial fails

	cfg := testConfig(serverURL, "")
	cfg.MaxAttempts = 2
	client := NewClient(cfg)
	defer client.Close()

	_ = client.Connect(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if client.State() == StateFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected terminal failed state, got %s", client.State())
}

func TestBackoffDelaysNonDecreasingUpToCap(t *testing.T) {
	cfg := testConfig("ws://unused", "")
	cfg.BaseBackoff = 100 * time.Millisecond
	cfg.MaxBackoff = 500 * time.Millisecond
	client := NewClient(cfg)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		delay := client.backoffDelay(attempt)
		if delay < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", attempt, delay, prev)
		}
		if delay > cfg.MaxBackoff {
			t.Fatalf("backoff exceeded cap at attempt %d: %v", attempt, delay)
		}
		prev = delay
	}
	if client.backoffDelay(6) != cfg.MaxBackoff {
		t.Fatalf("expected backoff pinned at cap, got %v", client.backoffDelay(6))
	}
}

func TestBackoffCapHoldsWithMaxJitter(t *testing.T) {
	cfg := testConfig("ws://unused", "")
	cfg.BaseBackoff = 100 * time.Millisecond
	cfg.MaxBackoff = 500 * time.Millisecond
	cfg.Jitter = func(max time.Duration) time.Duration { return max }
	client := NewClient(cfg)

	// Worst-case jitter must never push the delay past the cap.
	for attempt := 1; attempt <= 8; attempt++ {
		if delay := client.backoffDelay(attempt); delay > cfg.MaxBackoff {
			t.Fatalf("backoff exceeded cap at attempt %d: %v", attempt, delay)
		}
	}
	if delay := client.backoffDelay(8); delay != cfg.MaxBackoff {
		t.Fatalf("expected saturated backoff pinned at cap, got %v", delay)
	}
}

func TestCloseCancelsReconnect(t *testing.T) {
	server := newStubServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	cfg := testConfig(server.URL, "")
	cfg.BaseBackoff = time.Hour // the pending reconnect must never fire
	client := NewClient(cfg)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, client, StateReconnecting)

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if state := client.State(); state != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", state)
	}

	time.Sleep(50 * time.Millisecond)
	if state := client.State(); state != StateDisconnected {
		t.Fatalf("close must prevent auto-reconnect, got %s", state)
	}
}

// --- helpers ---

func testConfig(serverURL, token string) Config {
	cfg := DefaultConfig(wsURL(serverURL), token)
	cfg.BaseBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 40 * time.Millisecond
	cfg.MaxAttempts = 5
	cfg.Jitter = func(time.Duration) time.Duration { return 0 }
	return cfg
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func newStubServer(t *testing.T, handle func(*websocket.Conn, *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
}

func nextMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return Message{}
	}
}

func waitForState(t *testing.T, client *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s, got %s", want, client.State())
}

func waitState(t *testing.T, client *Client, want State, also func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if client.State() == want && also() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s (with side condition), got %s", want, client.State())
}

func hasStateSubsequence(got, want []State) bool {
	i := 0
	for _, s := range got {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}
