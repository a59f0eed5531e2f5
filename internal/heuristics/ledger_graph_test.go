package heuristics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func transfer(sender, receiver string, amount float64, at time.Time) Row {
	return Row{
		"sender_id":   sender,
		"receiver_id": receiver,
		"amount":      amount,
		"timestamp":   at.Format("2006-01-02 15:04:05"),
	}
}

func mustBuild(t *testing.T, rows []Row) *Graph {
	t.Helper()
	g, _, err := BuildGraph(rows, BuildOptions{Now: baseTime})
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	return g
}

func TestParseTransaction_FieldAliases(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		sender   string
		receiver string
		amount   float64
	}{
		{"Canonical", Row{"sender_id": "A", "receiver_id": "B", "amount": "10.50"}, "A", "B", 10.5},
		{"Short names", Row{"from": "A", "to": "B", "value": 3.0}, "A", "B", 3},
		{"Mixed case keys", Row{" Sender ": "A", "RECEIVER": "B", "Amt": "7"}, "A", "B", 7},
		{"Payer payee", Row{"payer": "A", "payee": "B", "transaction_amount": int64(42)}, "A", "B", 42},
		{"Numeric ids", Row{"source": float64(101), "target": 202, "amount": 1.25}, "101", "202", 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, ok, zeroed := ParseTransaction(tt.row, baseTime)
			if !ok {
				t.Fatalf("expected row to parse")
			}
			if zeroed {
				t.Errorf("amount unexpectedly zeroed")
			}
			if tx.Sender != tt.sender || tx.Receiver != tt.receiver {
				t.Errorf("parties = %s→%s, want %s→%s", tx.Sender, tx.Receiver, tt.sender, tt.receiver)
			}
			if tx.Amount != tt.amount {
				t.Errorf("amount = %v, want %v", tx.Amount, tt.amount)
			}
		})
	}
}

func TestParseTransaction_Defaults(t *testing.T) {
	tx, ok, zeroed := ParseTransaction(Row{"sender_id": "A", "receiver_id": "B", "amount": "n/a", "timestamp": "yesterday"}, baseTime)
	if !ok {
		t.Fatalf("expected row with both parties to parse")
	}
	if !zeroed || tx.Amount != 0 {
		t.Errorf("unparsable amount should become 0 (got %v, zeroed=%v)", tx.Amount, zeroed)
	}
	if !tx.TimestampDefaulted || !tx.Timestamp.Equal(baseTime) {
		t.Errorf("unparsable timestamp should default to run clock, got %v", tx.Timestamp)
	}

	if _, ok, _ := ParseTransaction(Row{"sender_id": "A", "amount": 5}, baseTime); ok {
		t.Errorf("row without receiver must be skipped")
	}
	if _, ok, _ := ParseTransaction(Row{"sender_id": "  ", "receiver_id": "B"}, baseTime); ok {
		t.Errorf("blank sender must be skipped")
	}
}

func TestParseTransaction_NonFiniteAmounts(t *testing.T) {
	tests := []struct {
		name   string
		amount any
	}{
		{"NaN float", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"overflowing string", "1e400"},
		{"overflowing json number", json.Number("-1e400")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, ok, zeroed := ParseTransaction(Row{"sender_id": "A", "receiver_id": "B", "amount": tt.amount}, baseTime)
			if !ok {
				t.Fatalf("row with both parties must be kept")
			}
			if !zeroed || tx.Amount != 0 {
				t.Errorf("amount %v should be zeroed, got %v (zeroed=%v)", tt.amount, tx.Amount, zeroed)
			}
		})
	}
}

func TestEngine_NonFiniteAmountsStillSerialize(t *testing.T) {
	rows := []Row{
		{"sender_id": "A", "receiver_id": "B", "amount": math.NaN()},
		{"sender_id": "B", "receiver_id": "C", "amount": math.Inf(1)},
		{"sender_id": "C", "receiver_id": "A", "amount": "1e400"},
	}
	run, err := NewEngine(DefaultConfig()).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Stats.ZeroedAmounts != 3 {
		t.Errorf("zeroed amounts = %d, want 3", run.Stats.ZeroedAmounts)
	}
	if _, err := json.Marshal(run.Result); err != nil {
		t.Fatalf("result must encode as JSON: %v", err)
	}
	if len(run.Result.Analysis.FraudRings) != 1 {
		t.Errorf("zeroed amounts must not hide the cycle, got %d rings", len(run.Result.Analysis.FraudRings))
	}
}

func TestParseTimestamp_FractionalEpoch(t *testing.T) {
	want := time.Unix(1700000000, 500_000_000).UTC()
	inputs := []any{
		json.Number("1700000000.5"),
		"1700000000.5",
		1700000000.5,
		"1700000000500.0",
	}
	for _, in := range inputs {
		t.Run(fmt.Sprint(in), func(t *testing.T) {
			got, ok := parseTimestamp(in)
			if !ok {
				t.Fatalf("parseTimestamp(%v) fell back to the run clock", in)
			}
			if !got.Equal(want) {
				t.Errorf("parseTimestamp(%v) = %v, want %v", in, got, want)
			}
		})
	}

	for _, in := range []any{"1e400", math.NaN(), math.Inf(1)} {
		if _, ok := parseTimestamp(in); ok {
			t.Errorf("parseTimestamp(%v) should be rejected", in)
		}
	}
}

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	inputs := []any{
		"2024-03-01 09:30:00",
		"2024-03-01T09:30:00Z",
		"2024-03-01T09:30:00",
		"03/01/2024 09:30:00",
		want.Unix(),
		fmt.Sprint(want.UnixMilli()),
	}
	for _, in := range inputs {
		t.Run(fmt.Sprint(in), func(t *testing.T) {
			got, ok := parseTimestamp(in)
			if !ok {
				t.Fatalf("parseTimestamp(%v) failed", in)
			}
			if !got.Equal(want) {
				t.Errorf("parseTimestamp(%v) = %v, want %v", in, got, want)
			}
		})
	}
}

func TestBuildGraph_AggregatesAndAdjacency(t *testing.T) {
	rows := []Row{
		transfer("A", "B", 100, baseTime),
		transfer("A", "B", 50, baseTime.Add(time.Hour)),
		transfer("B", "C", 25, baseTime.Add(2*time.Hour)),
		{"sender_id": "orphan"},
	}
	g, stats, err := BuildGraph(rows, BuildOptions{Now: baseTime})
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	if stats.Rows != 4 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 4 rows with 1 skipped", stats)
	}
	if len(g.Accounts) != 3 || len(g.Edges) != 3 {
		t.Fatalf("got %d accounts / %d edges, want 3 / 3", len(g.Accounts), len(g.Edges))
	}
	if ids := []string{g.Accounts[0].ID, g.Accounts[1].ID, g.Accounts[2].ID}; ids[0] != "A" || ids[1] != "B" || ids[2] != "C" {
		t.Errorf("accounts not in discovery order: %v", ids)
	}

	a, b := g.Account("A"), g.Account("B")
	if a.Sent != 150 || b.Received != 150 || b.Sent != 25 {
		t.Errorf("totals wrong: A.sent=%v B.received=%v B.sent=%v", a.Sent, b.Received, b.Sent)
	}
	if b.TransactionCount != 3 || len(b.Timestamps) != 3 {
		t.Errorf("B should appear in 3 transfers, got count=%d timestamps=%d", b.TransactionCount, len(b.Timestamps))
	}

	ai, _ := g.Lookup("A")
	bi, _ := g.Lookup("B")
	if g.OutDegree(ai) != 2 || g.InDegree(bi) != 2 {
		t.Errorf("parallel transfers must be kept: out(A)=%d in(B)=%d", g.OutDegree(ai), g.InDegree(bi))
	}
}

func TestBuildGraph_EmptyInput(t *testing.T) {
	tests := []struct {
		name string
		rows []Row
	}{
		{"No rows", nil},
		{"Only unusable rows", []Row{{"amount": 5}, {"sender_id": "A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildGraph(tt.rows, BuildOptions{Now: baseTime})
			if !errors.Is(err, ErrEmptyInput) {
				t.Fatalf("expected ErrEmptyInput, got %v", err)
			}
		})
	}
}

func TestBuildGraph_StrictTimestamps(t *testing.T) {
	rows := []Row{
		transfer("A", "B", 1, baseTime),
		{"sender_id": "B", "receiver_id": "C", "amount": 1, "timestamp": "garbage"},
	}

	_, lenient, err := BuildGraph(rows, BuildOptions{Now: baseTime})
	if err != nil {
		t.Fatalf("lenient build failed: %v", err)
	}
	if lenient.DefaultedTimestamps != 1 || lenient.Skipped != 0 {
		t.Errorf("lenient stats = %+v, want 1 defaulted and 0 skipped", lenient)
	}

	g, strict, err := BuildGraph(rows, BuildOptions{Now: baseTime, StrictTimestamps: true})
	if err != nil {
		t.Fatalf("strict build failed: %v", err)
	}
	if strict.Skipped != 1 || len(g.Edges) != 1 {
		t.Errorf("strict mode should skip the bad row: stats=%+v edges=%d", strict, len(g.Edges))
	}
}
