package models

// Pattern tags attached to accounts
const (
	PatternCycle        = "cycle"
	PatternSmurfing     = "smurfing"
	PatternShell        = "shell"
	PatternHighVelocity = "high_velocity"
)

// NoRing is emitted in place of a ring id for accounts outside every ring
const NoRing = "NONE"

// Display classes used by the graph projection for nodes and edges
const (
	ClassFraud      = "fraud"
	ClassSuspicious = "suspicious"
	ClassNormal     = "normal"
)

// SuspiciousAccount is one flagged account in the analysis output
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`   // Clamped to 0-100
	DetectedPatterns []string `json:"detected_patterns"` // In order of detection
	RingID           string   `json:"ring_id"`           // Last ring assigned, or NONE
	RingIDs          []string `json:"ring_ids"`          // Every ring the account belongs to
}

// FraudRing is a named group of accounts sharing one detected pattern
type FraudRing struct {
	RingID         string   `json:"ring_id"`      // RING_001, RING_002, ...
	PatternType    string   `json:"pattern_type"` // "cycle"/"smurfing"/"shell"
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      float64  `json:"risk_score"`
}

// Summary is filled in by the caller of the engine, never by the engine itself
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
	RowsReceived              int     `json:"rows_received"`
	RowsSkipped               int     `json:"rows_skipped"`
	DefaultedTimestamps       int     `json:"defaulted_timestamps"` // Rows whose time fell back to "now"
	ZeroedAmounts             int     `json:"zeroed_amounts"`       // Rows whose amount was unparsable
}

// Analysis is the tabular part of a run (what the dashboard tables and exports consume)
type Analysis struct {
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []FraudRing         `json:"fraud_rings"`
	Summary            Summary             `json:"summary"`
}

// GraphNode is a rendering-agnostic account node for the external visualizer
type GraphNode struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"` // "fraud"/"suspicious"/"normal"
	RiskScore        float64  `json:"risk_score"`
	RingID           string   `json:"ring_id"` // Last ring assigned, or NONE
	DetectedPatterns []string `json:"detected_patterns"`
	TransactionCount int      `json:"transaction_count"`
	TotalSent        float64  `json:"total_sent"`
	TotalReceived    float64  `json:"total_received"`
}

// GraphEdge is one transfer in the projection; parallel transfers are kept
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
	Type   string  `json:"type"` // "fraud"/"suspicious"/"normal"
}

// GraphProjection holds the node and edge lists handed to the renderer
type GraphProjection struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphEdge `json:"links"`
}

// AnalysisResult is the full output of one engine run
type AnalysisResult struct {
	AnalysisID string          `json:"analysisId,omitempty"`
	Analysis   Analysis        `json:"analysis"`
	Graph      GraphProjection `json:"graph"`
}
