package heuristics

import (
	"sort"
	"time"
)

// Smurfing (Structuring) Detection Module
//
// Structuring splits a large sum into many small transfers so that no single
// transfer crosses a reporting threshold:
//
//   fan-in:   S₁ S₂ … S₁₀ ──▶ D        (collection point)
//   fan-out:  D ──▶ R₁ R₂ … R₁₀        (distribution point)
//
// Two signals must coincide:
//  1. Breadth: at least FanThreshold distinct counterparties on one side
//  2. Density: WindowCount appearances of the account within WindowSpan
//
// The density test runs over every appearance of the account (inbound and
// outbound mixed), which is what the account's timestamp list holds.
//
// References:
//   - FinCEN, "Structuring" guidance (31 CFR 1010.314)
//   - FATF, "Professional Money Laundering" (2018), money-mule networks

// SmurfingResult holds the flagged arena indices, in build order.
// An account may appear in both lists.
type SmurfingResult struct {
	FanIn  []int
	FanOut []int
}

// DetectSmurfing flags fan-in and fan-out structuring
func DetectSmurfing(g *Graph, cfg Config) SmurfingResult {
	cfg = cfg.normalize()

	var res SmurfingResult
	for i, acct := range g.Accounts {
		fanIn := countDistinct(g.In[i])
		fanOut := countDistinct(g.Out[i])
		if fanIn < cfg.FanThreshold && fanOut < cfg.FanThreshold {
			continue
		}

		dense := hasDenseWindow(acct.Timestamps, cfg.WindowCount, cfg.WindowSpan)
		if !dense {
			continue
		}
		if fanIn >= cfg.FanThreshold {
			res.FanIn = append(res.FanIn, i)
		}
		if fanOut >= cfg.FanThreshold {
			res.FanOut = append(res.FanOut, i)
		}
	}
	return res
}

// hasDenseWindow reports whether some run of count consecutive timestamps
// (after sorting) spans at most span. Fewer than count timestamps never pass.
func hasDenseWindow(timestamps []time.Time, count int, span time.Duration) bool {
	if count <= 0 || len(timestamps) < count {
		return false
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Before(sorted[b]) })

	for left := 0; left+count-1 < len(sorted); left++ {
		if sorted[left+count-1].Sub(sorted[left]) <= span {
			return true
		}
	}
	return false
}

func countDistinct(list []int) int {
	if len(list) < 2 {
		return len(list)
	}
	seen := make(map[int]struct{}, len(list))
	for _, n := range list {
		seen[n] = struct{}{}
	}
	return len(seen)
}
