package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Stream message types pushed to dashboards on /api/v1/stream
const (
	StreamRingAlert        = "ring_alert"
	StreamAnalysisComplete = "analysis_complete"
)

const (
	streamWriteWait = 5 * time.Second
	streamQueueSize = 256
)

// StreamEnvelope is the JSON frame sent to every dashboard
type StreamEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans stream frames out to connected dashboards. Frames are queued and
// written by Run; a client that fails a write is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	queue    chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub accepts connections from allowedOrigins; an empty list or "*"
// accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		queue:   make(chan []byte, streamQueueSize),
		clients: make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(set) == 0 || origin == "" || set[origin]
	}
}

// Run writes queued frames until Close
func (h *Hub) Run() {
	for frame := range h.queue {
		h.mu.Lock()
		for conn := range h.clients {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[Hub] Dropping client %s: %v", conn.RemoteAddr(), err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// Close stops Run and disconnects every client. Publishing after Close panics.
func (h *Hub) Close() {
	close(h.queue)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribe upgrades the request and registers the dashboard
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Hub] Failed to upgrade websocket: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Hub] Dashboard connected from %s (%d connected)", conn.RemoteAddr(), total)

	// The stream is push-only; reads exist to observe the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[Hub] Read error from %s: %v", conn.RemoteAddr(), err)
				}
				break
			}
		}
		h.mu.Lock()
		delete(h.clients, conn)
		total := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		log.Printf("[Hub] Dashboard disconnected (%d connected)", total)
	}()
}

// Publish queues a typed frame. A full queue drops the frame instead of
// blocking the analysis request that produced it.
func (h *Hub) Publish(msgType string, data any) bool {
	frame, err := json.Marshal(StreamEnvelope{Type: msgType, Data: data})
	if err != nil {
		log.Printf("[Hub] Failed to encode %s frame: %v", msgType, err)
		return false
	}
	select {
	case h.queue <- frame:
		return true
	default:
		log.Printf("[Hub] Queue full, dropping %s frame", msgType)
		return false
	}
}

// BroadcastRingAlert is the AlertManager callback that streams each alert
func BroadcastRingAlert(wsHub *Hub) func(alerts.Alert) {
	return func(alert alerts.Alert) {
		wsHub.Publish(StreamRingAlert, alert)
	}
}

// analysisEvent is the analysis_complete payload: enough for a dashboard to
// refresh its run list without the full graph.
type analysisEvent struct {
	AnalysisID string         `json:"analysisId"`
	Source     string         `json:"source"`
	Summary    models.Summary `json:"summary"`
}

func (h *Hub) publishAnalysis(result *models.AnalysisResult, source string) {
	h.Publish(StreamAnalysisComplete, analysisEvent{
		AnalysisID: result.AnalysisID,
		Source:     source,
		Summary:    result.Analysis.Summary,
	})
}
