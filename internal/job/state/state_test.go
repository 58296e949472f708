package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, Queued.IsTerminal())
	assert.False(t, Processing.IsTerminal())
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Failed.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Queued, Processing, Completed, Failed} {
		assert.True(t, s.IsValid(), "expected %s to be valid", s)
	}
	assert.False(t, Status("PENDING").IsValid())
	assert.False(t, Status("cancelled").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestCanTransition(t *testing.T) {
	m := NewMachine()

	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"queued to processing", Queued, Processing, true},
		{"queued to completed skips execution", Queued, Completed, false},
		{"queued to failed skips execution", Queued, Failed, false},
		{"processing progress tick", Processing, Processing, true},
		{"processing to completed", Processing, Completed, true},
		{"processing to failed", Processing, Failed, true},
		{"processing back to queued", Processing, Queued, false},
		{"completed is terminal", Completed, Processing, false},
		{"completed cannot fail", Completed, Failed, false},
		{"failed is terminal", Failed, Processing, false},
		{"failed cannot complete", Failed, Completed, false},
		{"queued self transition", Queued, Queued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, m.CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	m := NewMachine()

	assert.NoError(t, m.ValidateTransition(Queued, Processing))
	assert.NoError(t, m.ValidateTransition(Processing, Processing))
	assert.NoError(t, m.ValidateTransition(Processing, Completed))

	err := m.ValidateTransition(Completed, Processing)
	assert.ErrorContains(t, err, "terminal")

	err = m.ValidateTransition(Status("bogus"), Processing)
	assert.ErrorContains(t, err, "invalid source status")

	err = m.ValidateTransition(Queued, Status("bogus"))
	assert.ErrorContains(t, err, "invalid target status")

	err = m.ValidateTransition(Queued, Failed)
	assert.ErrorContains(t, err, "invalid transition")
}
