package heuristics

import "errors"

var (
	// ErrEmptyInput means the ledger held no row with both a sender and a receiver.
	ErrEmptyInput = errors.New("no usable transactions in input")

	// ErrInvalidInput means the input is not a list of transaction records.
	ErrInvalidInput = errors.New("input is not a list of transaction records")
)
