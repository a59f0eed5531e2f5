package heuristics

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Cycle Detection Module
//
// A closed payment loop is the classic layering shape:
//
//   A ──▶ B ──▶ C ──▶ A
//
// Funds leave an account and come back to it after a few hops, so each hop
// looks like an ordinary payment while the loop as a whole moves nothing.
//
// Search: bounded depth-first search from every candidate (accounts with at
// least one inbound and one outbound transfer), keeping the current path
// simple. A loop is recorded when a successor equals the start and the path
// holds at least MinCycleLength accounts; paths never grow past
// MaxCycleDepth. The same loop reached from a different start or rotation
// collapses onto one canonical key (sorted members).
//
// Cost is exponential in branching factor. The safety valves are the
// candidate cap, the depth cap, a per-candidate visit budget and the
// caller's deadline.
//
// References:
//   - FATF, "Money Laundering and Terrorist Financing Typologies" (round-tripping)
//   - Johnson, "Finding All the Elementary Circuits of a Directed Graph" (SIAM 1975)

// dfsFrame is one level of the explicit DFS stack
type dfsFrame struct {
	node int
	next int // Index of the next successor to try
}

// cycleSearch is the outcome for a single start account
type cycleSearch struct {
	cycles    [][]int
	truncated bool
}

// DetectCycles returns every distinct cycle as a member list in discovery
// order. Candidates are searched in parallel, but results are merged in
// candidate order so the output matches a sequential run exactly.
func DetectCycles(ctx context.Context, g *Graph, cfg Config) ([][]string, error) {
	cfg = cfg.normalize()

	candidates := cycleCandidates(g, cfg.MaxCycleCandidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Repeated transfers to the same counterparty cannot produce a loop that
	// the first copy did not, so the search walks distinct successors.
	succ := distinctNeighbors(g.Out)

	ctx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
	defer cancel()

	results := make([]cycleSearch, len(candidates))
	var truncated atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.CycleWorkers)
	for i, start := range candidates {
		eg.Go(func() error {
			res, err := searchCycles(egCtx, start, succ, cfg)
			if err != nil {
				return err
			}
			if res.truncated {
				truncated.Add(1)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("cycle search: %w", err)
	}

	if n := truncated.Load(); n > 0 {
		log.Printf("[CycleDetector] Visit budget (%d) exhausted for %d of %d candidates; results for those starts are partial",
			cfg.CycleVisitBudget, n, len(candidates))
	}

	seen := make(map[string]struct{})
	var cycles [][]string
	for _, res := range results {
		for _, cycle := range res.cycles {
			members := make([]string, len(cycle))
			for j, idx := range cycle {
				members[j] = g.Accounts[idx].ID
			}
			key := canonicalCycleKey(members)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cycles = append(cycles, members)
		}
	}
	return cycles, nil
}

// cycleCandidates returns the first limit accounts, in build order, that
// both send and receive.
func cycleCandidates(g *Graph, limit int) []int {
	var out []int
	for i := range g.Accounts {
		if len(out) >= limit {
			break
		}
		if len(g.Out[i]) > 0 && len(g.In[i]) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// searchCycles walks every simple path from start with an explicit stack.
// The path slice is the bounded path buffer; a frame's position in the stack
// equals its position in the path.
func searchCycles(ctx context.Context, start int, succ [][]int, cfg Config) (cycleSearch, error) {
	var res cycleSearch

	path := make([]int, 1, cfg.MaxCycleDepth)
	path[0] = start
	stack := make([]dfsFrame, 1, cfg.MaxCycleDepth)
	stack[0] = dfsFrame{node: start}
	visits := 1

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(succ[top.node]) {
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		nb := succ[top.node][top.next]
		top.next++

		if nb == start {
			if len(path) >= cfg.MinCycleLength {
				res.cycles = append(res.cycles, append([]int(nil), path...))
			}
			continue
		}
		if len(path) >= cfg.MaxCycleDepth || containsIndex(path, nb) {
			continue
		}

		visits++
		if visits > cfg.CycleVisitBudget {
			res.truncated = true
			return res, nil
		}
		if visits&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		stack = append(stack, dfsFrame{node: nb})
		path = append(path, nb)
	}

	return res, ctx.Err()
}

// canonicalCycleKey is rotation- and start-independent
func canonicalCycleKey(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func containsIndex(path []int, idx int) bool {
	for _, p := range path {
		if p == idx {
			return true
		}
	}
	return false
}

// distinctNeighbors de-duplicates each adjacency list, keeping first-seen order
func distinctNeighbors(adj [][]int) [][]int {
	out := make([][]int, len(adj))
	for i, list := range adj {
		if len(list) == 0 {
			continue
		}
		seen := make(map[int]struct{}, len(list))
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out[i] = append(out[i], n)
		}
	}
	return out
}
