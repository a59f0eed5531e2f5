package heuristics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger Graph Builder
//
// Turns the raw transfer ledger into a directed multigraph:
//
//   sender ──amount──▶ receiver
//
// Accounts live in an arena (Graph.Accounts) indexed by discovery order, and
// adjacency is kept as index lists in both directions. Parallel transfers
// between the same pair stay separate edges; every later stage relies on
// raw degrees (legitimacy filter, smurf ring membership) as well as
// de-duplicated ones (fan-in/fan-out flagging).
//
// The builder is best-effort: rows missing a party are skipped, unparsable
// amounts become 0 and unparsable times fall back to the run clock. Only an
// input with zero usable rows is an error.

// Row is one raw ledger record as delivered by an upload (CSV row or JSON object)
type Row map[string]any

// Accepted field-name spellings, tried in order, case-insensitively
var (
	senderFields    = []string{"sender_id", "sender", "from", "from_account", "source", "source_account", "payer"}
	receiverFields  = []string{"receiver_id", "receiver", "to", "to_account", "target", "destination", "payee"}
	amountFields    = []string{"amount", "value", "amt", "transaction_amount"}
	timestampFields = []string{"timestamp", "time", "datetime", "date", "ts", "created_at"}
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// Transaction is a parsed, immutable transfer
type Transaction struct {
	Sender             string
	Receiver           string
	Amount             float64
	Timestamp          time.Time
	TimestampDefaulted bool // Time fell back to the run clock
}

// Account aggregates everything known about one party during a run
type Account struct {
	ID               string
	Sent             float64
	Received         float64
	TransactionCount int
	Timestamps       []time.Time // Inbound and outbound appearances, in ledger order
	Patterns         []string    // Cumulative, never cleared
	Score            int         // Cumulative, clamped only at emission
	RingID           string      // Last ring assigned
	RingIDs          []string    // Every ring assigned
}

// HasPattern reports whether the account already carries tag p
func (a *Account) HasPattern(p string) bool {
	for _, existing := range a.Patterns {
		if existing == p {
			return true
		}
	}
	return false
}

func (a *Account) addPattern(p string) {
	if !a.HasPattern(p) {
		a.Patterns = append(a.Patterns, p)
	}
}

// Edge is one directed transfer between two arena indices
type Edge struct {
	Source    int
	Target    int
	Amount    float64
	Timestamp time.Time
}

// Graph is the per-run ledger graph. It is owned by exactly one analysis.
type Graph struct {
	Accounts []*Account
	Edges    []Edge
	Out      [][]int // Successors per account, duplicates kept
	In       [][]int // Predecessors per account, duplicates kept
	index    map[string]int
}

// NewGraph returns an empty graph
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Lookup returns the arena index of an account id
func (g *Graph) Lookup(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Account returns the account for an id, or nil
func (g *Graph) Account(id string) *Account {
	if i, ok := g.index[id]; ok {
		return g.Accounts[i]
	}
	return nil
}

// ensure lazily creates an account on first sighting
func (g *Graph) ensure(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.Accounts)
	g.index[id] = i
	g.Accounts = append(g.Accounts, &Account{ID: id})
	g.Out = append(g.Out, nil)
	g.In = append(g.In, nil)
	return i
}

// AddTransaction records one transfer on both parties and in both adjacency lists
func (g *Graph) AddTransaction(tx Transaction) {
	s := g.ensure(tx.Sender)
	r := g.ensure(tx.Receiver)

	sender := g.Accounts[s]
	sender.Sent += tx.Amount
	sender.TransactionCount++
	sender.Timestamps = append(sender.Timestamps, tx.Timestamp)

	receiver := g.Accounts[r]
	receiver.Received += tx.Amount
	receiver.TransactionCount++
	receiver.Timestamps = append(receiver.Timestamps, tx.Timestamp)

	g.Edges = append(g.Edges, Edge{Source: s, Target: r, Amount: tx.Amount, Timestamp: tx.Timestamp})
	g.Out[s] = append(g.Out[s], r)
	g.In[r] = append(g.In[r], s)
}

// OutDegree is the raw (non-deduplicated) number of outgoing transfers
func (g *Graph) OutDegree(i int) int { return len(g.Out[i]) }

// InDegree is the raw (non-deduplicated) number of incoming transfers
func (g *Graph) InDegree(i int) int { return len(g.In[i]) }

// BuildOptions controls row interpretation
type BuildOptions struct {
	Now              time.Time // Clock used for unparsable timestamps; one reading per run
	StrictTimestamps bool
}

// BuildStats counts the data-quality decisions taken while building
type BuildStats struct {
	Rows                int `json:"rows"`
	Skipped             int `json:"skipped"`
	DefaultedTimestamps int `json:"defaultedTimestamps"`
	ZeroedAmounts       int `json:"zeroedAmounts"`
}

// BuildGraph parses rows in order and builds the ledger graph.
// Row order is preserved everywhere downstream.
func BuildGraph(rows []Row, opts BuildOptions) (*Graph, BuildStats, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	g := NewGraph()
	stats := BuildStats{Rows: len(rows)}

	for _, row := range rows {
		tx, ok, zeroed := ParseTransaction(row, opts.Now)
		if !ok {
			stats.Skipped++
			continue
		}
		if tx.TimestampDefaulted {
			if opts.StrictTimestamps {
				stats.Skipped++
				continue
			}
			stats.DefaultedTimestamps++
		}
		if zeroed {
			stats.ZeroedAmounts++
		}
		g.AddTransaction(tx)
	}

	if len(g.Edges) == 0 {
		return nil, stats, fmt.Errorf("%w (%d rows, %d skipped)", ErrEmptyInput, stats.Rows, stats.Skipped)
	}
	return g, stats, nil
}

// ParseTransaction resolves one raw row. ok is false when either party is
// missing; zeroed is true when the amount could not be parsed.
func ParseTransaction(row Row, now time.Time) (tx Transaction, ok bool, zeroed bool) {
	if row == nil {
		return tx, false, false
	}
	fields := normalizeKeys(row)

	tx.Sender = fieldString(fields, senderFields)
	tx.Receiver = fieldString(fields, receiverFields)
	if tx.Sender == "" || tx.Receiver == "" {
		return tx, false, false
	}

	amount, amountOK := parseAmount(fieldValue(fields, amountFields))
	tx.Amount = amount
	zeroed = !amountOK

	ts, tsOK := parseTimestamp(fieldValue(fields, timestampFields))
	if !tsOK {
		ts = now
		tx.TimestampDefaulted = true
	}
	tx.Timestamp = ts

	return tx, true, zeroed
}

// HasPartyColumns reports whether a set of column names names both a sender
// and a receiver under one of the accepted spellings.
func HasPartyColumns(columns []string) bool {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return anyPresent(present, senderFields) && anyPresent(present, receiverFields)
}

func anyPresent(present map[string]bool, aliases []string) bool {
	for _, name := range aliases {
		if present[name] {
			return true
		}
	}
	return false
}

func normalizeKeys(row Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func fieldValue(fields map[string]any, aliases []string) any {
	for _, name := range aliases {
		if v, ok := fields[name]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func fieldString(fields map[string]any, aliases []string) string {
	return stringify(fieldValue(fields, aliases))
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func parseAmount(v any) (float64, bool) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		d = decimal.NewFromFloat(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	default:
		d, err = decimal.NewFromString(stringify(val))
		if err != nil {
			return 0, false
		}
	}
	// Strings like "1e400" parse but overflow float64
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return time.Time{}, false
		}
		return unixDecimal(decimal.NewFromFloat(val))
	case int64:
		return unixTime(val), true
	case int:
		return unixTime(int64(val)), true
	}

	s := stringify(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unixTime(n), true
	}
	// Fractional epoch values such as "1700000000.5"
	if d, err := decimal.NewFromString(s); err == nil {
		return unixDecimal(d)
	}
	return time.Time{}, false
}

var (
	unixMilliThreshold = decimal.NewFromInt(1e12)
	maxUnixSeconds     = decimal.NewFromInt(1e13)
)

// unixDecimal is unixTime for fractional values, keeping sub-second precision.
// Values outside roughly ±300k years are rejected.
func unixDecimal(d decimal.Decimal) (time.Time, bool) {
	if d.Abs().GreaterThan(unixMilliThreshold) {
		d = d.Shift(-3)
	}
	if d.Abs().GreaterThan(maxUnixSeconds) {
		return time.Time{}, false
	}
	secs := d.Truncate(0)
	nanos := d.Sub(secs).Shift(9).IntPart()
	return time.Unix(secs.IntPart(), nanos).UTC(), true
}

// unixTime accepts seconds or milliseconds since the epoch
func unixTime(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
