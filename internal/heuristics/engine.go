package heuristics

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Engine runs the full detection pipeline:
//
//   rows → BuildGraph → DetectCycles ─┐
//                     → DetectSmurfing → FilterLegitimate
//                     → DetectShellChains
//                                      └→ CompileRings → ProjectGraph
//
// An Engine holds only immutable configuration, so one value can serve
// concurrent Analyze calls. Every call builds and owns its own Graph.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine creates an engine with the given thresholds (zero fields take defaults)
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalize(), now: time.Now}
}

// Config returns the effective thresholds
func (e *Engine) Config() Config {
	return e.cfg
}

// Run is the outcome of one Analyze call plus its ingest statistics
type Run struct {
	Result   *models.AnalysisResult
	Stats    BuildStats
	Accounts int
	Elapsed  time.Duration
}

// Analyze runs the pipeline and returns the result. The summary block is left
// zeroed for the caller.
func (e *Engine) Analyze(ctx context.Context, rows []Row) (*models.AnalysisResult, error) {
	run, err := e.Run(ctx, rows)
	if err != nil {
		return nil, err
	}
	return run.Result, nil
}

// Run is Analyze with the build statistics and timing exposed
func (e *Engine) Run(ctx context.Context, rows []Row) (*Run, error) {
	start := e.now()

	g, stats, err := BuildGraph(rows, BuildOptions{
		Now:              start,
		StrictTimestamps: e.cfg.StrictTimestamps,
	})
	if err != nil {
		return nil, err
	}

	cycles, err := DetectCycles(ctx, g, e.cfg)
	if err != nil {
		return nil, err
	}

	smurfs := FilterLegitimate(g, DetectSmurfing(g, e.cfg), e.cfg)
	shells := DetectShellChains(g, e.cfg)

	compiled := CompileRings(g, cycles, smurfs, shells, e.cfg)
	projection := ProjectGraph(g, e.cfg)

	elapsed := e.now().Sub(start)
	log.Printf("[Engine] Analyzed %d transfers across %d accounts: %d rings, %d flagged (%s)",
		len(g.Edges), len(g.Accounts), len(compiled.Rings), len(compiled.Suspicious), elapsed.Round(time.Millisecond))

	return &Run{
		Result: &models.AnalysisResult{
			Analysis: models.Analysis{
				SuspiciousAccounts: compiled.Suspicious,
				FraudRings:         compiled.Rings,
			},
			Graph: projection,
		},
		Stats:    stats,
		Accounts: len(g.Accounts),
		Elapsed:  elapsed,
	}, nil
}
