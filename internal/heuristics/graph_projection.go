package heuristics

import "github.com/rawblock/ring-engine/pkg/models"

// ProjectGraph renders the scored graph as plain node and edge lists for the
// dashboard. It must run after CompileRings; it never mutates g.
//
// Node class: "fraud" when the account is in a cycle, "suspicious" when its
// score exceeds SuspiciousNodeScore, otherwise "normal". Edge class follows
// its endpoints: fraud→fraud is "fraud", any suspicious endpoint (or a single
// fraud endpoint) is "suspicious". Nodes outside every ring carry NONE.
func ProjectGraph(g *Graph, cfg Config) models.GraphProjection {
	cfg = cfg.normalize()

	classes := make([]string, len(g.Accounts))
	nodes := make([]models.GraphNode, 0, len(g.Accounts))
	for i, acct := range g.Accounts {
		classes[i] = nodeClass(acct, cfg.SuspiciousNodeScore)
		ringID := acct.RingID
		if ringID == "" {
			ringID = models.NoRing
		}
		nodes = append(nodes, models.GraphNode{
			ID:               acct.ID,
			Type:             classes[i],
			RiskScore:        float64(clampScore(acct.Score)),
			RingID:           ringID,
			DetectedPatterns: append([]string{}, acct.Patterns...),
			TransactionCount: acct.TransactionCount,
			TotalSent:        acct.Sent,
			TotalReceived:    acct.Received,
		})
	}

	links := make([]models.GraphEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		links = append(links, models.GraphEdge{
			Source: g.Accounts[e.Source].ID,
			Target: g.Accounts[e.Target].ID,
			Amount: e.Amount,
			Type:   edgeClass(classes[e.Source], classes[e.Target]),
		})
	}

	return models.GraphProjection{Nodes: nodes, Links: links}
}

func nodeClass(acct *Account, suspiciousScore int) string {
	switch {
	case acct.HasPattern(models.PatternCycle):
		return models.ClassFraud
	case acct.Score > suspiciousScore:
		return models.ClassSuspicious
	default:
		return models.ClassNormal
	}
}

func edgeClass(src, dst string) string {
	switch {
	case src == models.ClassFraud && dst == models.ClassFraud:
		return models.ClassFraud
	case src == models.ClassSuspicious || dst == models.ClassSuspicious:
		return models.ClassSuspicious
	case src == models.ClassFraud || dst == models.ClassFraud:
		return models.ClassSuspicious
	default:
		return models.ClassNormal
	}
}
