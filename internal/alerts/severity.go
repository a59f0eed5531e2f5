package alerts

const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityOrder is lowest first; unknown names rank as info
var severityOrder = []string{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func severityRank(s string) int {
	for i, name := range severityOrder {
		if name == s {
			return i
		}
	}
	return 0
}

// SeverityAtLeast reports whether severity ranks at or above minimum
func SeverityAtLeast(severity, minimum string) bool {
	return severityRank(severity) >= severityRank(minimum)
}

// SeverityForRisk maps a ring risk score onto alert severity
func SeverityForRisk(risk float64) string {
	switch {
	case risk >= 90:
		return SeverityCritical
	case risk >= 70:
		return SeverityHigh
	case risk >= 50:
		return SeverityMedium
	case risk > 0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}
