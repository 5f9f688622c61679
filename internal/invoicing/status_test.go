package invoicing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" partial_paid ")
	require.NoError(t, err)
	assert.Equal(t, StatusPartialPaid, s)

	for _, raw := range []string{"REFUNDED", "", "   "} {
		_, err = ParseStatus(raw)
		require.ErrorIs(t, err, ErrInvalidStatus, raw)
	}
}

func TestCheckTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDraft:       {StatusIssued, StatusCancelled, StatusVoided},
		StatusIssued:      {StatusDraft, StatusCancelled, StatusVoided},
		StatusPartialPaid: {StatusCancelled, StatusVoided},
		StatusPaid:        {StatusVoided},
	}
	for from := range statuses {
		for to := range statuses {
			err := CheckTransition(from, to)
			switch {
			case from.Terminal():
				assert.ErrorIs(t, err, ErrTerminalState, "%s -> %s", from, to)
			case contains(allowed[from], to):
				assert.NoError(t, err, "%s -> %s", from, to)
			default:
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestAllowedTargetsIsACopy(t *testing.T) {
	targets := AllowedTargets(StatusDraft)
	targets[0] = StatusPaid
	assert.Equal(t, StatusIssued, AllowedTargets(StatusDraft)[0])
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
