package metrics

import (
	"sort"

	"github.com/rawblock/ring-engine/pkg/models"
)

// RingEvaluation compares one analysis against known ring labels
type RingEvaluation struct {
	Accounts       int `json:"accounts"`
	LabelledRings  int `json:"labelled_rings"`
	DetectedRings  int `json:"detected_rings"`
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`

	Precision              float64 `json:"precision"`
	Recall                 float64 `json:"recall"`
	F1                     float64 `json:"f1"`
	AdjustedRandIndex      float64 `json:"adjusted_rand_index"`
	VariationOfInformation float64 `json:"variation_of_information"`

	Missed     []string `json:"missed,omitempty"`     // Labelled, not flagged
	Unexpected []string `json:"unexpected,omitempty"` // Flagged, not labelled
}

// EvaluateRings scores result against labels (account id → ring label; an
// empty label means legitimate). The account universe is every graph node
// plus every labelled account.
//
// Flag metrics treat any suspicious account as a positive. The partition
// metrics compare ring_id against the label, with unassigned accounts as
// singletons on both sides.
func EvaluateRings(result *models.AnalysisResult, labels map[string]string) RingEvaluation {
	universe := make(map[string]bool, len(result.Graph.Nodes)+len(labels))
	predictedRing := make(map[string]string, len(result.Graph.Nodes))
	for _, node := range result.Graph.Nodes {
		universe[node.ID] = true
		if node.RingID != "" && node.RingID != models.NoRing {
			predictedRing[node.ID] = node.RingID
		}
	}
	for id := range labels {
		universe[id] = true
	}

	flagged := make(map[string]bool, len(result.Analysis.SuspiciousAccounts))
	for _, acct := range result.Analysis.SuspiciousAccounts {
		flagged[acct.AccountID] = true
	}

	ids := make([]string, 0, len(universe))
	for id := range universe {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ev := RingEvaluation{
		Accounts:      len(ids),
		DetectedRings: len(result.Analysis.FraudRings),
	}
	truthRings := make(map[string]bool)
	predicted := make([]string, len(ids))
	truth := make([]string, len(ids))

	for i, id := range ids {
		label := labels[id]
		if label != "" {
			truthRings[label] = true
		}

		switch {
		case flagged[id] && label != "":
			ev.TruePositives++
		case flagged[id]:
			ev.FalsePositives++
			ev.Unexpected = append(ev.Unexpected, id)
		case label != "":
			ev.FalseNegatives++
			ev.Missed = append(ev.Missed, id)
		}

		predicted[i] = clusterKey("p:", predictedRing[id], id)
		truth[i] = clusterKey("t:", label, id)
	}

	ev.LabelledRings = len(truthRings)
	ev.Precision = ratio(ev.TruePositives, ev.TruePositives+ev.FalsePositives)
	ev.Recall = ratio(ev.TruePositives, ev.TruePositives+ev.FalseNegatives)
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}
	ev.AdjustedRandIndex = AdjustedRandIndex(predicted, truth)
	ev.VariationOfInformation = VariationOfInformation(predicted, truth)
	return ev
}

// clusterKey names the cluster an account falls in; unassigned accounts get
// a singleton keyed by their own id.
func clusterKey(prefix, label, id string) string {
	if label == "" {
		return prefix + "solo:" + id
	}
	return prefix + "ring:" + label
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
