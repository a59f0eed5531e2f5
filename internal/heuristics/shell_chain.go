package heuristics

// Shell Chain Detection Module
//
// Shell chains pass funds through a sequence of barely used accounts so the
// trail to the origin gets longer and noisier:
//
//   src ──▶ W₁ ──▶ W₂ ──▶ W₃ ──▶ dst        (Wᵢ: 1-5 transfers in total)
//
// A "weak" account has ShellMinTx ≤ transactionCount ≤ ShellMaxTx. Chains are
// grown greedily: from the current account take the first forward neighbour
// that is weak and not already in the chain, until none is left.
//
// Accounts appended to a chain are marked visited and never start a chain of
// their own. Extension itself ignores the visited set, so chains may share a
// tail.

// DetectShellChains returns chains of at least ShellMinChain weak accounts
func DetectShellChains(g *Graph, cfg Config) [][]string {
	cfg = cfg.normalize()

	weak := make([]bool, len(g.Accounts))
	for i, acct := range g.Accounts {
		weak[i] = acct.TransactionCount >= cfg.ShellMinTx && acct.TransactionCount <= cfg.ShellMaxTx
	}

	visited := make([]bool, len(g.Accounts))
	var chains [][]string

	for start := range g.Accounts {
		if !weak[start] || visited[start] {
			continue
		}

		chain := []int{start}
		current := start
		for {
			next := -1
			for _, nb := range g.Out[current] {
				if weak[nb] && !containsIndex(chain, nb) {
					next = nb
					break
				}
			}
			if next < 0 {
				break
			}
			chain = append(chain, next)
			visited[next] = true
			current = next
		}

		if len(chain) < cfg.ShellMinChain {
			continue
		}
		ids := make([]string, len(chain))
		for j, idx := range chain {
			ids[j] = g.Accounts[idx].ID
		}
		chains = append(chains, ids)
	}
	return chains
}
