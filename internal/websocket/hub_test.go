package websocket

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"founder-llm-backend/internal/logger"
)

type stubParser struct {
	userID uuid.UUID
	err    error
}

func (s stubParser) ParseUserID(token string) (uuid.UUID, error) {
	return s.userID, s.err
}

func TestHub_RejectsUnauthenticated(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		parser stubParser
	}{
		{"missing token", "", stubParser{userID: uuid.New()}},
		{"invalid token", "?token=bad", stubParser{err: errors.New("signature is invalid")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHub(nil, tc.parser, nil, logger.Nop())
			req := httptest.NewRequest(http.MethodGet, "/v1/ws"+tc.query, nil)
			rr := httptest.NewRecorder()

			h.HandleWebSocket(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000", " https://app.example.com/ "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"http://localhost:3001", false},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := check(req); got != tc.want {
			t.Errorf("origin %q: got %v, want %v", tc.origin, got, tc.want)
		}
	}

	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/v1/ws", nil)) {
		t.Error("wildcard must accept any origin")
	}
}

// connPair returns the server side of a live websocket connection and the
// client that dialed it.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConns:
		t.Cleanup(func() { conn.Close() })
		return conn, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestHub_BroadcastDeliversToConnectedClient(t *testing.T) {
	conn, client := connPair(t)
	h := NewHub(nil, stubParser{}, nil, logger.Nop())
	userID := uuid.New()
	h.connections[userID] = []*websocket.Conn{conn}

	h.broadcast(userID, []byte(`{"type":"file_status"}`))

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"file_status"}` {
		t.Errorf("unexpected payload %q", data)
	}
	if len(h.connections[userID]) != 1 {
		t.Error("a healthy connection must stay registered")
	}
}

func TestHub_BroadcastDropsStalledConnection(t *testing.T) {
	conn, _ := connPair(t)
	h := NewHub(nil, stubParser{}, nil, logger.Nop())
	h.writeWait = 50 * time.Millisecond
	userID := uuid.New()
	h.connections[userID] = []*websocket.Conn{conn}

	// The client never reads, so socket buffers fill and writes start to block.
	payload := bytes.Repeat([]byte("x"), 1<<20)
	giveUp := time.Now().Add(15 * time.Second)
	for len(h.connections[userID]) > 0 {
		if time.Now().After(giveUp) {
			t.Fatal("stalled connection was never dropped")
		}
		start := time.Now()
		h.broadcast(userID, payload)
		if d := time.Since(start); d > 2*time.Second {
			t.Fatalf("broadcast held the hub lock for %s", d)
		}
	}
}
