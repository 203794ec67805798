package apiutil

import (
	"net/http"
	"strings"
)

// Required trims value and rejects it when empty.
func Required(value, field, label string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", FieldError{Field: field, Reason: label + " is required"}
	}
	return value, nil
}

// QueryID returns the required "id" query parameter.
func QueryID(r *http.Request) (string, error) {
	return Required(r.URL.Query().Get("id"), "id", "ID")
}
