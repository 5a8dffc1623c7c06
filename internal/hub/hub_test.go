package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yourusername/webui-watchdog/internal/progress"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to decode message %s: %v", data, err)
	}
	return msg
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", h.Clients(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastProgress(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, h, 1)

	h.Publish(progress.Update{TaskID: "abc123", Active: true, Progress: 0.5, Resumed: true})

	msg := readMessage(t, conn)
	if msg.Type != TypeProgress {
		t.Fatalf("Type = %q, want %q", msg.Type, TypeProgress)
	}
	if msg.Progress == nil || msg.Progress.TaskID != "abc123" || msg.Progress.Progress != 0.5 {
		t.Errorf("Progress = %+v", msg.Progress)
	}
	if msg.Timestamp == "" {
		t.Error("Timestamp not set")
	}
}

func TestHub_ReplaysLastState(t *testing.T) {
	h, url := startHub(t)

	h.Broadcast(Message{Type: TypeState, Watchdog: "reconnect", State: "waiting"})
	h.Broadcast(Message{Type: TypeState, Watchdog: "reconnect", State: "confirmed"})

	conn := dial(t, url)
	msg := readMessage(t, conn)
	if msg.Type != TypeState || msg.State != "confirmed" {
		t.Errorf("first message = %+v, want confirmed state", msg)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}
