package billing

import (
	"errors"
	"fmt"
)

var (
	ErrNoUsageInPeriod     = errors.New("no sessions found for this team in the given period")
	ErrMalformedInput      = errors.New("malformed input")
	ErrMissingField        = fmt.Errorf("%w: missing field", ErrMalformedInput)
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("invoice not found")
	ErrInvalidStatus       = errors.New("invalid invoice status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidPeriod       = errors.New("period_start must not be after period_end")
	ErrInvalidTaxRate      = errors.New("tax_rate must not be negative")
)

func missingField(name string) error {
	return fmt.Errorf("%w %q", ErrMissingField, name)
}
