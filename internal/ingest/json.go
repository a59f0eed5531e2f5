package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

// DecodeJSON accepts either a bare array of transaction objects or an object
// wrapping that array under "transactions". Numbers are kept as json.Number
// so account ids and amounts survive without float rounding.
func DecodeJSON(data []byte) ([]heuristics.Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty json body: %w", heuristics.ErrEmptyInput)
	}

	var items []json.RawMessage
	switch data[0] {
	case '[':
		if err := decodeNumbers(data, &items); err != nil {
			return nil, fmt.Errorf("json array: %v: %w", err, heuristics.ErrInvalidInput)
		}
	case '{':
		var envelope struct {
			Transactions []json.RawMessage `json:"transactions"`
		}
		if err := decodeNumbers(data, &envelope); err != nil {
			return nil, fmt.Errorf("json object: %v: %w", err, heuristics.ErrInvalidInput)
		}
		if envelope.Transactions == nil {
			return nil, fmt.Errorf("json object has no \"transactions\" list: %w", heuristics.ErrInvalidInput)
		}
		items = envelope.Transactions
	default:
		return nil, fmt.Errorf("json body is neither an array nor an object: %w", heuristics.ErrInvalidInput)
	}

	rows := make([]heuristics.Row, 0, len(items))
	for i, item := range items {
		var row heuristics.Row
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("transaction %d is not an object: %w", i, heuristics.ErrInvalidInput)
		}
		if err := decodeNumbers(item, &row); err != nil {
			return nil, fmt.Errorf("transaction %d: %v: %w", i, err, heuristics.ErrInvalidInput)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
