package heuristics

// FilterLegitimate removes bulk-payment shapes that look like smurfing but
// belong to ordinary businesses:
//
//   - payroll distributor: raw out-degree > LegitMinDegree, raw in-degree < LegitMaxCounterDegree
//   - merchant / collector: raw in-degree > LegitMinDegree, raw out-degree < LegitMaxCounterDegree
//
// Degrees are raw transfer counts, not distinct counterparties.
func FilterLegitimate(g *Graph, smurfs SmurfingResult, cfg Config) SmurfingResult {
	cfg = cfg.normalize()

	var out SmurfingResult
	for _, i := range smurfs.FanOut {
		if g.OutDegree(i) > cfg.LegitMinDegree && g.InDegree(i) < cfg.LegitMaxCounterDegree {
			continue // payroll
		}
		out.FanOut = append(out.FanOut, i)
	}
	for _, i := range smurfs.FanIn {
		if g.InDegree(i) > cfg.LegitMinDegree && g.OutDegree(i) < cfg.LegitMaxCounterDegree {
			continue // merchant
		}
		out.FanIn = append(out.FanIn, i)
	}
	return out
}
