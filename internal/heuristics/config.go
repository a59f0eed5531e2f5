package heuristics

import (
	"runtime"
	"time"
)

// Config carries every tunable threshold of the detection pipeline.
// A zero field is replaced by its default in normalize().
type Config struct {
	// Cycle search. Only the first MaxCycleCandidates accounts in build order
	// are explored; MaxCycleDepth caps hops regardless of closure and
	// CycleVisitBudget caps DFS pushes per candidate.
	MaxCycleCandidates int           `yaml:"max_cycle_candidates" json:"maxCycleCandidates"`
	MinCycleLength     int           `yaml:"min_cycle_length" json:"minCycleLength"`
	MaxCycleDepth      int           `yaml:"max_cycle_depth" json:"maxCycleDepth"`
	CycleVisitBudget   int           `yaml:"cycle_visit_budget" json:"cycleVisitBudget"`
	CycleWorkers       int           `yaml:"cycle_workers" json:"cycleWorkers"`
	CycleTimeout       time.Duration `yaml:"cycle_timeout" json:"cycleTimeout"`

	// Smurfing: FanThreshold distinct counterparties plus WindowCount
	// appearances inside WindowSpan.
	FanThreshold int           `yaml:"fan_threshold" json:"fanThreshold"`
	WindowCount  int           `yaml:"window_count" json:"windowCount"`
	WindowSpan   time.Duration `yaml:"window_span" json:"windowSpan"`

	// Payroll / merchant exclusion
	LegitMinDegree        int `yaml:"legit_min_degree" json:"legitMinDegree"`
	LegitMaxCounterDegree int `yaml:"legit_max_counter_degree" json:"legitMaxCounterDegree"`

	// Shell chains
	ShellMinTx    int `yaml:"shell_min_tx" json:"shellMinTx"`
	ShellMaxTx    int `yaml:"shell_max_tx" json:"shellMaxTx"`
	ShellMinChain int `yaml:"shell_min_chain" json:"shellMinChain"`

	// Ring compilation
	SmurfNeighborLimit  int  `yaml:"smurf_neighbor_limit" json:"smurfNeighborLimit"`
	DedupeSmurfMembers  bool `yaml:"dedupe_smurf_members" json:"dedupeSmurfMembers"`
	HighVelocityMinTx   int  `yaml:"high_velocity_min_tx" json:"highVelocityMinTx"`
	SuspiciousNodeScore int  `yaml:"suspicious_node_score" json:"suspiciousNodeScore"`

	// StrictTimestamps skips rows with an unparsable time instead of
	// stamping them with the run clock.
	StrictTimestamps bool `yaml:"strict_timestamps" json:"strictTimestamps"`
}

// Fixed score contributions of the scoring model
const (
	CycleRingRisk    = 95.0
	SmurfingRingRisk = 75.0
	ShellRingRisk    = 60.0

	CycleMemberScore    = 50
	SmurfingMemberScore = 30
	ShellMemberScore    = 20
	HighVelocityBonus   = 10

	MaxSuspicionScore = 100
)

// Defaults
const (
	DefaultMaxCycleCandidates = 1000
	DefaultMinCycleLength     = 3
	DefaultMaxCycleDepth      = 5
	DefaultCycleVisitBudget   = 200000
	DefaultCycleTimeout       = 30 * time.Second

	DefaultFanThreshold = 10
	DefaultWindowCount  = 10
	DefaultWindowSpan   = 72 * time.Hour

	DefaultLegitMinDegree        = 20
	DefaultLegitMaxCounterDegree = 5

	DefaultShellMinTx    = 1
	DefaultShellMaxTx    = 5
	DefaultShellMinChain = 2

	DefaultSmurfNeighborLimit  = 5
	DefaultHighVelocityMinTx   = 50
	DefaultSuspiciousNodeScore = 50
)

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MaxCycleCandidates:    DefaultMaxCycleCandidates,
		MinCycleLength:        DefaultMinCycleLength,
		MaxCycleDepth:         DefaultMaxCycleDepth,
		CycleVisitBudget:      DefaultCycleVisitBudget,
		CycleWorkers:          runtime.GOMAXPROCS(0),
		CycleTimeout:          DefaultCycleTimeout,
		FanThreshold:          DefaultFanThreshold,
		WindowCount:           DefaultWindowCount,
		WindowSpan:            DefaultWindowSpan,
		LegitMinDegree:        DefaultLegitMinDegree,
		LegitMaxCounterDegree: DefaultLegitMaxCounterDegree,
		ShellMinTx:            DefaultShellMinTx,
		ShellMaxTx:            DefaultShellMaxTx,
		ShellMinChain:         DefaultShellMinChain,
		SmurfNeighborLimit:    DefaultSmurfNeighborLimit,
		HighVelocityMinTx:     DefaultHighVelocityMinTx,
		SuspiciousNodeScore:   DefaultSuspiciousNodeScore,
	}
}

// normalize fills zero fields with defaults so partially specified
// configs (YAML overlays, tests) behave like the production thresholds.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxCycleCandidates <= 0 {
		c.MaxCycleCandidates = d.MaxCycleCandidates
	}
	if c.MinCycleLength <= 0 {
		c.MinCycleLength = d.MinCycleLength
	}
	if c.MaxCycleDepth <= 0 {
		c.MaxCycleDepth = d.MaxCycleDepth
	}
	if c.CycleVisitBudget <= 0 {
		c.CycleVisitBudget = d.CycleVisitBudget
	}
	if c.CycleWorkers <= 0 {
		c.CycleWorkers = d.CycleWorkers
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.FanThreshold <= 0 {
		c.FanThreshold = d.FanThreshold
	}
	if c.WindowCount <= 0 {
		c.WindowCount = d.WindowCount
	}
	if c.WindowSpan <= 0 {
		c.WindowSpan = d.WindowSpan
	}
	if c.LegitMinDegree <= 0 {
		c.LegitMinDegree = d.LegitMinDegree
	}
	if c.LegitMaxCounterDegree <= 0 {
		c.LegitMaxCounterDegree = d.LegitMaxCounterDegree
	}
	if c.ShellMinTx <= 0 {
		c.ShellMinTx = d.ShellMinTx
	}
	if c.ShellMaxTx <= 0 {
		c.ShellMaxTx = d.ShellMaxTx
	}
	if c.ShellMinChain <= 0 {
		c.ShellMinChain = d.ShellMinChain
	}
	if c.SmurfNeighborLimit <= 0 {
		c.SmurfNeighborLimit = d.SmurfNeighborLimit
	}
	if c.HighVelocityMinTx <= 0 {
		c.HighVelocityMinTx = d.HighVelocityMinTx
	}
	if c.SuspiciousNodeScore <= 0 {
		c.SuspiciousNodeScore = d.SuspiciousNodeScore
	}
	return c
}
