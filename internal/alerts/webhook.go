package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	webhookTimeout   = 5 * time.Second
	webhookAttempts  = 3
	webhookBaseDelay = 250 * time.Millisecond
)

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"` // Only alerts at or above this severity
}

type webhookSet struct {
	mu     sync.RWMutex
	hooks  []WebhookEndpoint
	client *http.Client
	delay  time.Duration
}

func newWebhookSet() *webhookSet {
	return &webhookSet{
		client: &http.Client{Timeout: webhookTimeout},
		delay:  webhookBaseDelay,
	}
}

func (ws *webhookSet) add(wh WebhookEndpoint) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.hooks = append(ws.hooks, wh)
}

func (ws *webhookSet) remove(name string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for i, wh := range ws.hooks {
		if wh.Name == name {
			ws.hooks = append(ws.hooks[:i], ws.hooks[i+1:]...)
			return true
		}
	}
	return false
}

// dispatch delivers alert to every matching receiver in the background
func (ws *webhookSet) dispatch(alert Alert) {
	ws.mu.RLock()
	targets := make([]WebhookEndpoint, 0, len(ws.hooks))
	for _, wh := range ws.hooks {
		if wh.Enabled && SeverityAtLeast(alert.Severity, wh.MinSeverity) {
			targets = append(targets, wh)
		}
	}
	ws.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert %s: %v", alert.ID, err)
		return
	}
	for _, wh := range targets {
		go func(wh WebhookEndpoint) {
			ctx, cancel := context.WithTimeout(context.Background(), webhookAttempts*webhookTimeout)
			defer cancel()
			if err := ws.deliver(ctx, wh, payload); err != nil {
				log.Printf("[Webhook] %s gave up on alert %s: %v", wh.Name, alert.ID, err)
			}
		}(wh)
	}
}

// deliver POSTs payload, retrying transport errors and 5xx responses with
// doubling delays. 4xx responses are not retried.
func (ws *webhookSet) deliver(ctx context.Context, wh WebhookEndpoint, payload []byte) error {
	delay := ws.delay
	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		retry, err := ws.post(ctx, wh, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == webhookAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%v (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (ws *webhookSet) post(ctx context.Context, wh WebhookEndpoint, payload []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
	return false, nil
}
