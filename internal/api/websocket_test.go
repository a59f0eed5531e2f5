package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ring-engine/internal/alerts"
)

func dialStream(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", hub.Subscribe)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHub_StreamsRingAlerts(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	conn := dialStream(t, hub)

	BroadcastRingAlert(hub)(alerts.Alert{ID: "a-1", RingID: "RING_001", Severity: alerts.SeverityCritical})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	var env struct {
		Type string       `json:"type"`
		Data alerts.Alert `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decode frame %s: %v", frame, err)
	}
	if env.Type != StreamRingAlert || env.Data.RingID != "RING_001" {
		t.Errorf("unexpected frame: %s", frame)
	}
}

func TestHub_PublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub() // Run not started, nothing drains the queue
	for i := 0; i < streamQueueSize; i++ {
		if !hub.Publish(StreamRingAlert, i) {
			t.Fatalf("frame %d should fit in the queue", i)
		}
	}
	if hub.Publish(StreamRingAlert, "overflow") {
		t.Errorf("publish on a full queue should drop the frame")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"any when empty", nil, "https://evil.test", true},
		{"wildcard", []string{"*"}, "https://evil.test", true},
		{"listed", []string{"https://dash.test"}, "https://dash.test", true},
		{"not listed", []string{"https://dash.test"}, "https://evil.test", false},
		{"no origin header", []string{"https://dash.test"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stream", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("originChecker(%v)(%q) = %v", tt.allowed, tt.origin, got)
			}
		})
	}
}
