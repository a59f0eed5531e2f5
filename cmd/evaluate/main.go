// Command evaluate runs the detection engine over a ledger with known ring
// labels and prints precision, recall and partition agreement as JSON.
//
//	evaluate -transactions ledger.csv -labels labels.csv [-config engine.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/internal/ingest"
	"github.com/rawblock/ring-engine/internal/metrics"
)

type report struct {
	Transactions string                 `json:"transactions"`
	Labels       string                 `json:"labels"`
	RowsReceived int                    `json:"rows_received"`
	RowsSkipped  int                    `json:"rows_skipped"`
	ElapsedMs    int64                  `json:"elapsed_ms"`
	Evaluation   metrics.RingEvaluation `json:"evaluation"`
}

func main() {
	var (
		txPath     = flag.String("transactions", "", "ledger file (.csv or .json)")
		labelsPath = flag.String("labels", "", "ground truth csv: account_id,ring_label")
		cfgPath    = flag.String("config", "", "optional YAML config; detection section is used")
		timeout    = flag.Duration("timeout", 5*time.Minute, "analysis deadline")
	)
	flag.Parse()

	if *txPath == "" || *labelsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("[Evaluate] config: %v", err)
		}
		cfg = loaded
	}

	rows, err := readLedger(*txPath)
	if err != nil {
		log.Fatalf("[Evaluate] ledger: %v", err)
	}
	labels, err := readLabels(*labelsPath)
	if err != nil {
		log.Fatalf("[Evaluate] labels: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	run, err := heuristics.NewEngine(cfg.Detection).Run(ctx, rows)
	if err != nil {
		log.Fatalf("[Evaluate] analysis failed: %v", err)
	}

	ev := metrics.EvaluateRings(run.Result, labels)
	log.Printf("[Evaluate] precision=%.3f recall=%.3f f1=%.3f ari=%.3f vi=%.3f",
		ev.Precision, ev.Recall, ev.F1, ev.AdjustedRandIndex, ev.VariationOfInformation)

	out := report{
		Transactions: *txPath,
		Labels:       *labelsPath,
		RowsReceived: run.Stats.Rows,
		RowsSkipped:  run.Stats.Skipped,
		ElapsedMs:    run.Elapsed.Milliseconds(),
		Evaluation:   ev,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[Evaluate] write report: %v", err)
	}
}

func readLedger(path string) ([]heuristics.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.DecodeJSON(data)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported ledger extension %q (want .csv or .json)", filepath.Ext(path))
	}
}

func readLabels(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.ReadLabels(f)
}
