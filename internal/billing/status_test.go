package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"draft", "issued", "paid", "overdue", "cancelled"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}

	for _, s := range []string{"", "PAID", "refunded"} {
		_, err := ParseStatus(s)
		assert.ErrorIs(t, err, ErrInvalidStatus, s)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusIssued, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaid, false},
		{StatusIssued, StatusPaid, true},
		{StatusIssued, StatusOverdue, true},
		{StatusIssued, StatusCancelled, true},
		{StatusIssued, StatusDraft, false},
		{StatusOverdue, StatusPaid, true},
		{StatusOverdue, StatusCancelled, true},
		{StatusOverdue, StatusIssued, false},
		{StatusPaid, StatusIssued, false},
		{StatusPaid, StatusCancelled, false},
		{StatusCancelled, StatusIssued, false},
		{StatusPaid, StatusPaid, true},
		{StatusCancelled, StatusCancelled, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}
