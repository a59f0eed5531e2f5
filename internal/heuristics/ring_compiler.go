package heuristics

import (
	"fmt"
	"sort"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Ring Compiler
//
// Turns raw detections into named rings and per-account scores. Detections
// are consumed in a fixed order so ring ids are reproducible:
//
//   1. cycles    → ring risk 95, members +50, tag "cycle"
//   2. smurfing  → ring risk 75, members +30, tag "smurfing"
//   3. shells    → ring risk 60, members +20, tag "shell"
//
// Accounts already tagged "cycle" never seed a smurfing ring, and a shell
// chain touching a cycle account is dropped.
//
// Scores and tags accumulate across rings. RingID is a plain overwrite (the
// last ring processed wins); RingIDs keeps every membership.
//
// Finalization adds the high-velocity bonus, emits every account with a
// positive score (clamped to 100) and sorts both lists descending with a
// stable sort, so ties keep discovery order.

// Compilation is the tabular output of the compiler
type Compilation struct {
	Rings      []models.FraudRing
	Suspicious []models.SuspiciousAccount
}

type ringCompiler struct {
	g     *Graph
	cfg   Config
	next  int
	rings []models.FraudRing
}

// CompileRings mutates scores, tags and ring ids on g and returns the rings
// and suspicious accounts.
// A smurf counterparty repeated in MemberAccounts is still credited only once.
func CompileRings(g *Graph, cycles [][]string, smurfs SmurfingResult, shells [][]string, cfg Config) Compilation {
	rc := &ringCompiler{g: g, cfg: cfg.normalize(), next: 1}

	for _, cycle := range cycles {
		if len(cycle) == 0 {
			continue
		}
		rc.addRing(models.PatternCycle, cycle, CycleRingRisk, CycleMemberScore)
	}

	flagged := make(map[int]bool, len(smurfs.FanIn)+len(smurfs.FanOut))
	for _, i := range smurfs.FanIn {
		flagged[i] = true
	}
	for _, i := range smurfs.FanOut {
		flagged[i] = true
	}
	for i, acct := range g.Accounts {
		if !flagged[i] || acct.HasPattern(models.PatternCycle) {
			continue
		}
		rc.addRing(models.PatternSmurfing, rc.smurfMembers(i), SmurfingRingRisk, SmurfingMemberScore)
	}

	for _, chain := range shells {
		if len(chain) == 0 || rc.touchesCycle(chain) {
			continue
		}
		rc.addRing(models.PatternShell, chain, ShellRingRisk, ShellMemberScore)
	}

	return Compilation{
		Rings:      rc.sortedRings(),
		Suspicious: rc.finalize(),
	}
}

// smurfMembers is the hub plus its first SmurfNeighborLimit forward
// neighbours. Repeated transfers to one counterparty repeat that member
// unless DedupeSmurfMembers is set.
func (rc *ringCompiler) smurfMembers(hub int) []string {
	members := []string{rc.g.Accounts[hub].ID}
	var seen map[int]bool
	if rc.cfg.DedupeSmurfMembers {
		seen = map[int]bool{hub: true}
	}

	added := 0
	for _, nb := range rc.g.Out[hub] {
		if added >= rc.cfg.SmurfNeighborLimit {
			break
		}
		if seen != nil {
			if seen[nb] {
				continue
			}
			seen[nb] = true
		}
		members = append(members, rc.g.Accounts[nb].ID)
		added++
	}
	return members
}

func (rc *ringCompiler) touchesCycle(chain []string) bool {
	for _, id := range chain {
		if acct := rc.g.Account(id); acct != nil && acct.HasPattern(models.PatternCycle) {
			return true
		}
	}
	return false
}

// addRing registers a ring and credits each distinct member once
func (rc *ringCompiler) addRing(pattern string, members []string, risk float64, memberScore int) {
	ringID := fmt.Sprintf("RING_%03d", rc.next)
	rc.next++

	rc.rings = append(rc.rings, models.FraudRing{
		RingID:         ringID,
		PatternType:    pattern,
		MemberAccounts: append([]string(nil), members...),
		RiskScore:      risk,
	})

	credited := make(map[string]bool, len(members))
	for _, id := range members {
		if credited[id] {
			continue
		}
		credited[id] = true

		acct := rc.g.Account(id)
		if acct == nil {
			continue
		}
		acct.Score += memberScore
		acct.addPattern(pattern)
		acct.RingID = ringID
		acct.RingIDs = append(acct.RingIDs, ringID)
	}
}

func (rc *ringCompiler) sortedRings() []models.FraudRing {
	rings := rc.rings
	if rings == nil {
		rings = []models.FraudRing{}
	}
	sort.SliceStable(rings, func(a, b int) bool {
		return rings[a].RiskScore > rings[b].RiskScore
	})
	return rings
}

// finalize applies the velocity bonus and emits suspicious accounts
func (rc *ringCompiler) finalize() []models.SuspiciousAccount {
	out := make([]models.SuspiciousAccount, 0)

	for _, acct := range rc.g.Accounts {
		if acct.TransactionCount > rc.cfg.HighVelocityMinTx {
			acct.Score += HighVelocityBonus
			acct.addPattern(models.PatternHighVelocity)
		}
		if acct.Score <= 0 {
			continue
		}

		ringID := acct.RingID
		if ringID == "" {
			ringID = models.NoRing
		}
		out = append(out, models.SuspiciousAccount{
			AccountID:        acct.ID,
			SuspicionScore:   float64(clampScore(acct.Score)),
			DetectedPatterns: append([]string{}, acct.Patterns...),
			RingID:           ringID,
			RingIDs:          append([]string{}, acct.RingIDs...),
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].SuspicionScore > out[b].SuspicionScore
	})
	return out
}

func clampScore(score int) int {
	if score > MaxSuspicionScore {
		return MaxSuspicionScore
	}
	if score < 0 {
		return 0
	}
	return score
}
