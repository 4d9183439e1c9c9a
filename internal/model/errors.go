package model

import "errors"

var (
	// ErrUnauthorized is returned when the acting identity may not mutate the ledger.
	ErrUnauthorized = errors.New("not authorized: only contract owner can perform this action")
	// ErrAlreadyExists is returned when adding an id that is already live.
	ErrAlreadyExists = errors.New("product already exists with this id")
	ErrNotFound      = errors.New("product not found")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidInput  = errors.New("invalid product id")
	// ErrPersistence wraps durable read/write failures. The in-memory ledger stays
	// authoritative when it is returned.
	ErrPersistence = errors.New("ledger persistence failure")
)
