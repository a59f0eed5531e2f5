package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

var (
	labelAccountColumns = []string{"account_id", "account", "id"}
	labelRingColumns    = []string{"ring_label", "ring_id", "ring", "label"}
)

// ReadLabels reads a ground-truth file of account id → ring label. Rows with
// a blank label mark the account as known legitimate. A repeated account
// keeps its last label.
func ReadLabels(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("labels have no header row: %w", heuristics.ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("labels header: %v: %w", err, heuristics.ErrInvalidInput)
	}

	accountCol, ringCol := -1, -1
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if accountCol < 0 && contains(labelAccountColumns, name) {
			accountCol = i
		}
		if ringCol < 0 && contains(labelRingColumns, name) {
			ringCol = i
		}
	}
	if accountCol < 0 || ringCol < 0 {
		return nil, fmt.Errorf("labels header %v needs account and ring columns: %w", header, heuristics.ErrInvalidInput)
	}

	labels := make(map[string]string)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("labels line %d: %v: %w", line, err, heuristics.ErrInvalidInput)
		}
		if accountCol >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[accountCol])
		if id == "" {
			continue
		}
		label := ""
		if ringCol < len(record) {
			label = strings.TrimSpace(record[ringCol])
		}
		labels[id] = label
	}
	return labels, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
