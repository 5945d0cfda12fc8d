package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newHeadsServer(t *testing.T, heads []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}

		if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: "0xabc"}); err != nil {
			return
		}

		for _, h := range heads {
			notif := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]interface{}{
					"subscription": "0xabc",
					"result":       map[string]interface{}{"number": h, "hash": "0x01"},
				},
			}
			if err := c.WriteJSON(notif); err != nil {
				return
			}
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestHeadNotifier_ReceivesHeads(t *testing.T) {
	server := newHeadsServer(t, []string{"0x64"})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	n, err := NewHeadNotifier(context.Background(), wsURL, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHeadNotifier: %v", err)
	}
	defer n.Close()

	select {
	case head := <-n.Heads():
		if head != 100 {
			t.Errorf("expected head 100, got %d", head)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for head")
	}
}

func TestHeadNotifier_KeepsLatestHead(t *testing.T) {
	server := newHeadsServer(t, []string{"0x1", "0x2", "0x3"})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	n, err := NewHeadNotifier(context.Background(), wsURL, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHeadNotifier: %v", err)
	}
	defer n.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case head := <-n.Heads():
			if head == 3 {
				return
			}
		case <-deadline:
			t.Fatal("never observed head 3")
		}
	}
}

func TestHeadNotifier_Close(t *testing.T) {
	server := newHeadsServer(t, nil)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	n, err := NewHeadNotifier(context.Background(), wsURL, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHeadNotifier: %v", err)
	}

	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !n.closed.Load() {
		t.Error("notifier should be closed")
	}
	if err := n.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestHeadNotifier_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewHeadNotifier(ctx, "ws://127.0.0.1:1", nil, zerolog.Nop()); err == nil {
		t.Fatal("expected dial error")
	}
}
