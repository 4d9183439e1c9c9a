// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// errorMapping is the HTTP status, machine code and default client message for
// a domain error.
type errorMapping struct {
	status  int
	code    string
	message string
}

var domainErrors = []struct {
	err error
	m   errorMapping
}{
	{model.ErrUnauthorized, errorMapping{http.StatusForbidden, "unauthorized", "Not authorized: Only contract owner can perform this action."}},
	{model.ErrAlreadyExists, errorMapping{http.StatusConflict, "already_exists", "Product already exists with this ID."}},
	{model.ErrNotFound, errorMapping{http.StatusNotFound, "not_found", "Product not found."}},
	{model.ErrMissingField, errorMapping{http.StatusBadRequest, "missing_field", "Required field is missing."}},
	{model.ErrInvalidInput, errorMapping{http.StatusBadRequest, "invalid_input", "Invalid Product ID."}},
	{model.ErrPersistence, errorMapping{http.StatusInternalServerError, "persistence_failure", "Ledger could not be saved."}},
}

func mapError(err error) errorMapping {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.m
		}
	}
	return errorMapping{http.StatusInternalServerError, "internal", "Internal server error."}
}

// writeDomainError writes err using its mapping. A non-empty message replaces
// the default client message.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	m := mapError(err)
	if message == "" {
		message = m.message
	}
	WriteJSONError(w, m.status, message, m.code)
}

// outcome labels a mutation result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return mapError(err).code
}
