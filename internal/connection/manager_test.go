package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aboyz1/HobbyVerse-sub001/internal/auth"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
)

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.WSURL = url
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 50 * time.Millisecond
	cfg.MaxAttempts = 3
	return cfg
}

// nextFrame waits for the next inbound frame and returns its decoded envelope.
func nextFrame(t *testing.T, m Manager) event.Envelope {
	t.Helper()

	select {
	case f := <-m.Frames():
		var env event.Envelope
		if err := json.Unmarshal(f.Data, &env); err != nil {
			t.Fatalf("decode frame %q: %v", f.Data, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return event.Envelope{}
	}
}

// waitForFrame skips frames until one with the given name arrives.
func waitForFrame(t *testing.T, m Manager, name string) event.Envelope {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-m.Frames():
			var env event.Envelope
			if err := json.Unmarshal(f.Data, &env); err != nil {
				t.Fatalf("decode frame %q: %v", f.Data, err)
			}
			if env.Event == name {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", name)
		}
	}
}

func TestManager_ConnectPublishesConnected(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer m.Disconnect()

	if env := nextFrame(t, m); env.Event != event.ConnectedName {
		t.Errorf("first frame = %q, want %q", env.Event, event.ConnectedName)
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
}

func TestManager_ConnectNoOpWhenConnected(t *testing.T) {
	var mu sync.Mutex
	upgrades := 0

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		upgrades++
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	cred := auth.NewCredential("tok")
	if err := m.Connect(context.Background(), cred); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer m.Disconnect()
	waitForFrame(t, m, event.ConnectedName)

	// Second connect while connected must not dial again.
	if err := m.Connect(context.Background(), cred); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}

	mu.Lock()
	got := upgrades
	mu.Unlock()
	if got != 1 {
		t.Errorf("server saw %d upgrades, want 1", got)
	}
}

func TestManager_EmitRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer m.Disconnect()
	waitForFrame(t, m, event.ConnectedName)

	m.Emit(event.JoinSquadName, "room-1")

	select {
	case data := <-received:
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode emitted frame: %v", err)
		}
		if env.Event != event.JoinSquadName {
			t.Errorf("emitted event = %q, want %q", env.Event, event.JoinSquadName)
		}
		var roomID string
		if err := json.Unmarshal(env.Data, &roomID); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if roomID != "room-1" {
			t.Errorf("payload = %q, want %q", roomID, "room-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emit")
	}
}

func TestManager_EmitDroppedWhenDisconnected(t *testing.T) {
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), nil)

	// Must not panic or block.
	m.Emit(event.TypingStartName, "room-1")

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestManager_ReconnectAfterServerClose(t *testing.T) {
	var mu sync.Mutex
	conns := 0

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer m.Disconnect()

	waitForFrame(t, m, event.ConnectedName)
	waitForFrame(t, m, event.DisconnectedName)
	waitForFrame(t, m, event.ConnectedName)

	if got := m.State(); got != StateConnected {
		t.Errorf("State() after reconnect = %v, want %v", got, StateConnected)
	}
}

func TestManager_FailedAfterCeiling(t *testing.T) {
	// Nothing listens here: every dial fails fast.
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), nil)

	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	env := waitForFrame(t, m, event.ConnectionFailedName)
	var status event.ConnectionStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", status.Attempts)
	}
	if got := m.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}
}

func TestManager_AuthRejectedTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	err := m.Connect(context.Background(), auth.NewCredential("stale"))
	if !errors.Is(err, ErrAuthRejected) {
		t.Errorf("Connect() = %v, want ErrAuthRejected", err)
	}

	waitForFrame(t, m, event.AuthRejectedName)
	if got := m.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}
}

func TestManager_ExpiredCredentialRejectedLocally(t *testing.T) {
	// Dialing would succeed, but the expired JWT must be refused first.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	// exp: 2001-09-09, alg none-style unsigned HS256 structure is fine
	// for the unverified parse.
	expired := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJzdWIiOiJ1c2VyLTEiLCJleHAiOjEwMDAwMDAwMDB9." +
		"c2lnbmF0dXJl"

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	err := m.Connect(context.Background(), auth.NewCredential(expired))
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("Connect() = %v, want ErrTokenExpired", err)
	}

	waitForFrame(t, m, event.AuthRejectedName)
	if got := m.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}
}

func TestManager_DisconnectDuringDialDiscardsConnection(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		if n == 1 {
			// Fail the first dial to arm a retry.
			http.Error(w, "not yet", http.StatusInternalServerError)
			return
		}
		// Stall the retry's handshake so Disconnect lands while the
		// dial is still in flight.
		time.Sleep(300 * time.Millisecond)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	// Let the retry fire and enter its stalled handshake, then
	// disconnect while it is still dialing.
	time.Sleep(50 * time.Millisecond)
	m.Disconnect()

	// Wait out the stalled handshake; the connection it produces must
	// be discarded, not installed.
	time.Sleep(600 * time.Millisecond)

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after in-flight dial completed = %v, want %v", got, StateDisconnected)
	}
	for {
		select {
		case f := <-m.Frames():
			var env event.Envelope
			if err := json.Unmarshal(f.Data, &env); err != nil {
				t.Fatalf("decode frame %q: %v", f.Data, err)
			}
			if env.Event == event.ConnectedName {
				t.Fatalf("connected event published after Disconnect()")
			}
		default:
			return
		}
	}
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	cfg := testManagerConfig("ws://127.0.0.1:1")
	cfg.ReconnectBaseDelay = 1 * time.Hour // retry must never fire
	cfg.ReconnectMaxDelay = 2 * time.Hour
	m := NewManager(cfg, nil)

	if err := m.Connect(context.Background(), auth.NewCredential("tok")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got := m.State(); got != StateReconnecting {
		t.Fatalf("State() = %v, want %v", got, StateReconnecting)
	}

	m.Disconnect()

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}
