// Package alerts distributes ring detections to dashboards and webhooks.
package alerts

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Every ring of a finished analysis becomes one alert. An alert is recorded
// in a bounded history, pushed to the live dashboard callback, and delivered
// to each webhook whose minimum severity it meets.
//
// Severity follows ring risk, so a cycle (95) pages as critical while a shell
// chain (60) is medium. A single run emits at most maxPerRun ring alerts; the
// rest are folded into one ring_overflow alert.

const (
	AlertRingDetected = "ring_detected"
	AlertRingOverflow = "ring_overflow"
)

// Alert is one ring detection as seen by dashboards and webhooks
type Alert struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    string    `json:"severity"`  // info/low/medium/high/critical
	AlertType   string    `json:"alertType"` // ring_detected/ring_overflow
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AnalysisID  string    `json:"analysisId,omitempty"`
	RingID      string    `json:"ringId,omitempty"`
	PatternType string    `json:"patternType,omitempty"`
	Members     []string  `json:"members,omitempty"`
	RiskScore   float64   `json:"riskScore,omitempty"`
}

// AlertManager records alerts and fans them out
type AlertManager struct {
	mu        sync.RWMutex
	history   []Alert
	maxHist   int
	maxPerRun int
	broadcast func(Alert)
	hooks     *webhookSet
}

// NewAlertManager creates a manager. broadcastFn may be nil; non-positive
// limits fall back to 1000 alerts of history and 50 alerts per run.
func NewAlertManager(broadcastFn func(Alert), maxHistory, maxPerRun int) *AlertManager {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	if maxPerRun <= 0 {
		maxPerRun = 50
	}
	return &AlertManager{
		history:   make([]Alert, 0, min(maxHistory, 64)),
		maxHist:   maxHistory,
		maxPerRun: maxPerRun,
		broadcast: broadcastFn,
		hooks:     newWebhookSet(),
	}
}

// RegisterWebhook adds a receiver for alerts at or above minSeverity
// (default "info").
func (am *AlertManager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	if minSeverity == "" {
		minSeverity = SeverityInfo
	}
	am.hooks.add(WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})
	log.Printf("[AlertManager] Registered webhook: %s → %s (min: %s)", name, url, minSeverity)
}

// RemoveWebhook drops the named receiver
func (am *AlertManager) RemoveWebhook(name string) bool {
	return am.hooks.remove(name)
}

// EmitAlert stamps, records and distributes one alert
func (am *AlertManager) EmitAlert(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	am.mu.Lock()
	if len(am.history) == am.maxHist {
		copy(am.history, am.history[1:])
		am.history = am.history[:am.maxHist-1]
	}
	am.history = append(am.history, alert)
	am.mu.Unlock()

	if am.broadcast != nil {
		am.broadcast(alert)
	}
	am.hooks.dispatch(alert)

	log.Printf("[Alert] [%s] %s: %s (run: %s)", alert.Severity, alert.AlertType, alert.Title, alert.AnalysisID)
}

// EmitRingAlerts sends one alert per ring, in the given order (the engine
// emits highest risk first). It returns the number of alerts sent, counting
// the overflow summary.
func (am *AlertManager) EmitRingAlerts(analysisID string, rings []models.FraudRing) int {
	sent := 0
	for _, ring := range rings {
		if sent == am.maxPerRun {
			break
		}
		am.EmitAlert(ringAlert(analysisID, ring))
		sent++
	}

	if rest := len(rings) - sent; rest > 0 {
		am.EmitAlert(Alert{
			Severity:    SeverityMedium,
			AlertType:   AlertRingOverflow,
			Title:       fmt.Sprintf("%d more rings not alerted individually", rest),
			Description: fmt.Sprintf("Run %s produced %d rings; only the first %d were sent as individual alerts.", analysisID, len(rings), sent),
			AnalysisID:  analysisID,
		})
		sent++
	}
	return sent
}

func ringAlert(analysisID string, ring models.FraudRing) Alert {
	return Alert{
		Severity:    SeverityForRisk(ring.RiskScore),
		AlertType:   AlertRingDetected,
		Title:       fmt.Sprintf("%s ring %s (%d accounts)", ring.PatternType, ring.RingID, len(ring.MemberAccounts)),
		Description: describeRing(ring),
		AnalysisID:  analysisID,
		RingID:      ring.RingID,
		PatternType: ring.PatternType,
		Members:     ring.MemberAccounts,
		RiskScore:   ring.RiskScore,
	}
}

// GetRecentAlerts returns up to limit alerts, newest first. A non-positive
// limit returns the whole history.
func (am *AlertManager) GetRecentAlerts(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	n := len(am.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, am.history[i])
	}
	return out
}

// GetAlertsBySeverity returns alerts at or above minSeverity, oldest first
func (am *AlertManager) GetAlertsBySeverity(minSeverity string) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	out := make([]Alert, 0)
	for _, a := range am.history {
		if SeverityAtLeast(a.Severity, minSeverity) {
			out = append(out, a)
		}
	}
	return out
}

const describeMemberLimit = 10

func describeRing(ring models.FraudRing) string {
	var b strings.Builder
	switch ring.PatternType {
	case models.PatternCycle:
		b.WriteString("Funds return to their origin through a closed loop. ")
	case models.PatternSmurfing:
		b.WriteString("Structured fan-in/fan-out through many counterparties. ")
	case models.PatternShell:
		b.WriteString("Pass-through chain of low-activity accounts. ")
	}

	members := ring.MemberAccounts
	b.WriteString("Members: ")
	if len(members) > describeMemberLimit {
		b.WriteString(strings.Join(members[:describeMemberLimit], ", "))
		fmt.Fprintf(&b, " and %d more", len(members)-describeMemberLimit)
		return b.String()
	}
	b.WriteString(strings.Join(members, ", "))
	return b.String()
}
