package domain

import "errors"

var (
	// ErrUnauthorized is returned when an operation has no identified operator.
	ErrUnauthorized = errors.New("unauthorized: no acting operator")

	// ErrRulesUnavailable is returned when the active rule set cannot be read.
	ErrRulesUnavailable = errors.New("rule set unavailable")
)
