package heuristics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/ring-engine/pkg/models"
)

func newTestEngine() *Engine {
	e := NewEngine(DefaultConfig())
	e.now = func() time.Time { return baseTime }
	return e
}

// scenarioRows is a ledger with one cycle, one fan-in collector and one shell chain
func scenarioRows() []Row {
	rows := []Row{
		transfer("A", "B", 10000, baseTime),
		transfer("B", "C", 9800, baseTime.Add(time.Hour)),
		transfer("C", "A", 9600, baseTime.Add(2*time.Hour)),
	}
	for i := 0; i < 12; i++ {
		rows = append(rows, transfer(fmt.Sprintf("S%02d", i), "D", 950, baseTime.Add(time.Duration(i)*4*time.Hour)))
	}
	rows = append(rows,
		transfer("X", "Y", 7000, baseTime.Add(3*time.Hour)),
		transfer("Y", "Z", 6900, baseTime.Add(4*time.Hour)),
	)
	return rows
}

func TestEngine_EndToEnd(t *testing.T) {
	res, err := newTestEngine().Analyze(context.Background(), scenarioRows())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	wantRings := []struct {
		pattern string
		members []string
		risk    float64
	}{
		{models.PatternCycle, []string{"A", "B", "C"}, CycleRingRisk},
		{models.PatternSmurfing, []string{"D"}, SmurfingRingRisk},
		{models.PatternShell, []string{"X", "Y", "Z"}, ShellRingRisk},
	}
	rings := res.Analysis.FraudRings
	if len(rings) != len(wantRings) {
		t.Fatalf("expected %d rings, got %d: %+v", len(wantRings), len(rings), rings)
	}
	for i, want := range wantRings {
		got := rings[i]
		if got.RingID != fmt.Sprintf("RING_%03d", i+1) {
			t.Errorf("ring %d id = %s", i, got.RingID)
		}
		if got.PatternType != want.pattern || got.RiskScore != want.risk || !reflect.DeepEqual(got.MemberAccounts, want.members) {
			t.Errorf("ring %d = %+v, want %s %v %v", i, got, want.pattern, want.members, want.risk)
		}
	}

	var order []string
	for _, acct := range res.Analysis.SuspiciousAccounts {
		order = append(order, acct.AccountID)
	}
	if want := []string{"A", "B", "C", "D", "X", "Y", "Z"}; !reflect.DeepEqual(order, want) {
		t.Errorf("suspicious order = %v, want %v", order, want)
	}

	if len(res.Graph.Nodes) != 19 || len(res.Graph.Links) != 17 {
		t.Errorf("projection has %d nodes / %d links, want 19 / 17", len(res.Graph.Nodes), len(res.Graph.Links))
	}
	if res.Analysis.Summary != (models.Summary{}) {
		t.Errorf("summary must be left for the caller, got %+v", res.Analysis.Summary)
	}
}

func TestEngine_PayrollExcluded(t *testing.T) {
	var rows []Row
	for i := 0; i < 25; i++ {
		rows = append(rows, transfer("PAYROLL", fmt.Sprintf("EMP%02d", i), 3000, baseTime.Add(time.Duration(i)*time.Minute)))
	}
	rows = append(rows, transfer("FUNDING", "PAYROLL", 50000, baseTime), transfer("FUNDING", "PAYROLL", 25000, baseTime))

	res, err := newTestEngine().Analyze(context.Background(), rows)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for _, ring := range res.Analysis.FraudRings {
		if ring.PatternType == models.PatternSmurfing {
			t.Errorf("payroll account must not form a smurfing ring: %+v", ring)
		}
	}
	for _, acct := range res.Analysis.SuspiciousAccounts {
		if acct.AccountID == "PAYROLL" {
			t.Errorf("payroll account flagged: %+v", acct)
		}
	}
}

func TestEngine_SmurfingPlusVelocity(t *testing.T) {
	var rows []Row
	for i := 0; i < 46; i++ {
		rows = append(rows, transfer(fmt.Sprintf("S%02d", i%12), "HUB", 900, baseTime.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 5; i++ {
		rows = append(rows, transfer("HUB", fmt.Sprintf("R%d", i), 8000, baseTime.Add(time.Hour)))
	}

	res, err := newTestEngine().Analyze(context.Background(), rows)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	var hub *models.SuspiciousAccount
	for i := range res.Analysis.SuspiciousAccounts {
		if res.Analysis.SuspiciousAccounts[i].AccountID == "HUB" {
			hub = &res.Analysis.SuspiciousAccounts[i]
		}
	}
	if hub == nil {
		t.Fatalf("HUB not flagged")
	}
	if hub.SuspicionScore != 40 {
		t.Errorf("HUB score = %v, want 40", hub.SuspicionScore)
	}
	if want := []string{models.PatternSmurfing, models.PatternHighVelocity}; !reflect.DeepEqual(hub.DetectedPatterns, want) {
		t.Errorf("HUB patterns = %v, want %v", hub.DetectedPatterns, want)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	rows := append(scenarioRows(), denseRows(6)...)
	e := newTestEngine()

	first, err := e.Analyze(context.Background(), rows)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := e.Analyze(context.Background(), rows)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical input produced different results")
	}
}

func TestEngine_ConcurrentRunsShareNothing(t *testing.T) {
	e := newTestEngine()
	want, err := e.Analyze(context.Background(), scenarioRows())
	if err != nil {
		t.Fatalf("baseline run failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]*models.AnalysisResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Analyze(context.Background(), scenarioRows())
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("run %d failed: %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i], want) {
			t.Errorf("run %d differs from the baseline", i)
		}
	}
}

func TestEngine_EmptyInput(t *testing.T) {
	_, err := newTestEngine().Analyze(context.Background(), []Row{{"note": "nothing here"}})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestEngine_RunStats(t *testing.T) {
	rows := append(scenarioRows(), Row{"sender_id": "A"}, Row{"sender_id": "Q", "receiver_id": "R", "amount": "??"})
	run, err := newTestEngine().Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Stats.Skipped != 1 || run.Stats.ZeroedAmounts != 1 {
		t.Errorf("stats = %+v, want 1 skipped and 1 zeroed", run.Stats)
	}
	if run.Accounts != 21 {
		t.Errorf("accounts = %d, want 21", run.Accounts)
	}
}

func TestProjection_Classes(t *testing.T) {
	nodes := []struct {
		name     string
		patterns []string
		score    int
		want     string
	}{
		{"Cycle member", []string{models.PatternCycle}, 50, models.ClassFraud},
		{"High score", []string{models.PatternSmurfing, models.PatternShell}, 60, models.ClassSuspicious},
		{"Score at threshold", []string{models.PatternSmurfing}, 50, models.ClassNormal},
		{"Clean", nil, 0, models.ClassNormal},
	}
	for _, tt := range nodes {
		t.Run(tt.name, func(t *testing.T) {
			acct := &Account{Patterns: tt.patterns, Score: tt.score}
			if got := nodeClass(acct, DefaultSuspiciousNodeScore); got != tt.want {
				t.Errorf("nodeClass() = %s, want %s", got, tt.want)
			}
		})
	}

	edges := []struct {
		src, dst, want string
	}{
		{models.ClassFraud, models.ClassFraud, models.ClassFraud},
		{models.ClassFraud, models.ClassNormal, models.ClassSuspicious},
		{models.ClassNormal, models.ClassSuspicious, models.ClassSuspicious},
		{models.ClassFraud, models.ClassSuspicious, models.ClassSuspicious},
		{models.ClassNormal, models.ClassNormal, models.ClassNormal},
	}
	for _, tt := range edges {
		if got := edgeClass(tt.src, tt.dst); got != tt.want {
			t.Errorf("edgeClass(%s, %s) = %s, want %s", tt.src, tt.dst, got, tt.want)
		}
	}
}

func TestProjection_EdgesFollowNodes(t *testing.T) {
	res, err := newTestEngine().Analyze(context.Background(), scenarioRows())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	types := make(map[string]string)
	for _, n := range res.Graph.Nodes {
		types[n.ID] = n.Type
	}
	if types["A"] != models.ClassFraud || types["D"] != models.ClassNormal {
		t.Errorf("node classes wrong: A=%s D=%s", types["A"], types["D"])
	}
	for _, l := range res.Graph.Links {
		if want := edgeClass(types[l.Source], types[l.Target]); l.Type != want {
			t.Errorf("%s→%s type %s, want %s", l.Source, l.Target, l.Type, want)
		}
	}
}

func TestProjection_RingIDOnEveryNode(t *testing.T) {
	res, err := newTestEngine().Analyze(context.Background(), scenarioRows())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	member := make(map[string]bool)
	for _, ring := range res.Analysis.FraudRings {
		for _, id := range ring.MemberAccounts {
			member[id] = true
		}
	}

	var outside []models.GraphNode
	for _, n := range res.Graph.Nodes {
		switch {
		case member[n.ID] && n.RingID == models.NoRing:
			t.Errorf("ring member %s projected without a ring", n.ID)
		case !member[n.ID] && n.RingID != models.NoRing:
			t.Errorf("node %s outside every ring has ring_id %q, want %q", n.ID, n.RingID, models.NoRing)
		case !member[n.ID]:
			outside = append(outside, n)
		}
	}
	if len(outside) == 0 {
		t.Fatalf("scenario should include accounts outside every ring")
	}

	raw, err := json.Marshal(outside[0])
	if err != nil {
		t.Fatalf("marshal node: %v", err)
	}
	if !strings.Contains(string(raw), `"ring_id":`) {
		t.Errorf("ring_id must always be present in node JSON: %s", raw)
	}
}
