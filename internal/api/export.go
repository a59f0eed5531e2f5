package api

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rawblock/ring-engine/pkg/models"
)

var suspiciousCSVHeader = []string{"Rank", "AccountID", "Score", "RingID", "Patterns"}

// WriteSuspiciousCSV renders the suspicious-account table in rank order.
// Patterns are joined with "|" so the file stays one row per account.
func WriteSuspiciousCSV(w io.Writer, accounts []models.SuspiciousAccount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(suspiciousCSVHeader); err != nil {
		return err
	}
	for i, acct := range accounts {
		record := []string{
			strconv.Itoa(i + 1),
			acct.AccountID,
			strconv.FormatFloat(acct.SuspicionScore, 'f', -1, 64),
			acct.RingID,
			strings.Join(acct.DetectedPatterns, "|"),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
