package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservation(t *testing.T) {
	r, err := NewReservation("SKU-001", "cust-1", 3, 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusActive, r.Status)
	assert.True(t, r.ExpiresAt.After(r.CreatedAt))

	for _, tc := range []struct {
		name       string
		productID  string
		customerID string
		quantity   int
		ttl        time.Duration
	}{
		{"empty product", "", "cust-1", 1, time.Minute},
		{"empty customer", "SKU-001", "", 1, time.Minute},
		{"zero quantity", "SKU-001", "cust-1", 0, time.Minute},
		{"negative quantity", "SKU-001", "cust-1", -2, time.Minute},
		{"zero ttl", "SKU-001", "cust-1", 1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReservation(tc.productID, tc.customerID, tc.quantity, tc.ttl)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
		})
	}
}

func TestIsExpired(t *testing.T) {
	r, _ := NewReservation("SKU-001", "cust-1", 1, time.Minute)
	assert.False(t, r.IsExpired(time.Now()))
	assert.True(t, r.IsExpired(time.Now().Add(2*time.Minute)))

	// 终态的预留不再视为可清扫
	r.Status = StatusConfirmed
	assert.False(t, r.IsExpired(time.Now().Add(2*time.Minute)))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}
