// Package ingest turns uploaded ledgers (CSV files, JSON documents) into the
// raw rows consumed by the detection engine.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

const utf8BOM = "\uFEFF"

// ReadCSV reads a ledger with a header row. Column names are trimmed and
// lower-cased; each record becomes one Row keyed by column name. Short
// records are kept with the columns they have.
func ReadCSV(r io.Reader) ([]heuristics.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv has no header row: %w", heuristics.ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %v: %w", err, heuristics.ErrInvalidInput)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		columns[i] = strings.ToLower(strings.TrimSpace(name))
	}
	if !heuristics.HasPartyColumns(columns) {
		return nil, fmt.Errorf("csv header %v has no sender/receiver columns: %w", columns, heuristics.ErrInvalidInput)
	}

	var rows []heuristics.Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %v: %w", len(rows)+2, err, heuristics.ErrInvalidInput)
		}

		row := make(heuristics.Row, len(columns))
		for i, value := range record {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			row[columns[i]] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}
