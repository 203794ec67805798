package league

import (
	"errors"
	"fmt"
)

var (
	ErrGameCancelled    = errors.New("this game has been cancelled")
	ErrSignupClosed     = errors.New("signups are currently closed")
	ErrGenderRestricted = errors.New("this game is restricted to another gender")
	ErrNotOnRoster      = errors.New("player is not signed up for this game")
	ErrNotifierDisabled = errors.New("bot messages are not configured")
)

// ValidationError reports bad input for a single field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) FieldName() string {
	return e.Field
}

func (e *ValidationError) Message() string {
	return e.Msg
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
