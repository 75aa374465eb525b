package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInventoryItem(t *testing.T) {
	item, err := NewInventoryItem("SKU-001", 100, 10, 500, "WH-A")
	require.NoError(t, err)
	assert.Equal(t, 100, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.Equal(t, 100, item.QuantityAvailable)
	assert.NoError(t, item.CheckInvariant())

	_, err = NewInventoryItem("", 10, 0, 0, "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewInventoryItem("SKU-001", -1, 0, 0, "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestApplyDeltaMaintainsInvariant(t *testing.T) {
	item, _ := NewInventoryItem("SKU-001", 10, 0, 0, "")

	require.NoError(t, item.ApplyDelta(4, 0)) // 预占 4
	assert.Equal(t, 10, item.QuantityOnHand)
	assert.Equal(t, 4, item.QuantityReserved)
	assert.Equal(t, 6, item.QuantityAvailable)

	require.NoError(t, item.ApplyDelta(-4, -4)) // 确认消耗
	assert.Equal(t, 6, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.Equal(t, 6, item.QuantityAvailable)
	assert.NoError(t, item.CheckInvariant())
}

func TestApplyDeltaRejectsViolations(t *testing.T) {
	item, _ := NewInventoryItem("SKU-001", 10, 0, 0, "")
	require.NoError(t, item.ApplyDelta(8, 0))

	cases := []struct {
		name                       string
		reservedDelta, onHandDelta int
	}{
		{"reserved exceeds on-hand", 3, 0},
		{"negative reserved", -9, 0},
		{"negative on-hand", 0, -11},
		{"on-hand below reserved", 0, -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := item.ApplyDelta(tc.reservedDelta, tc.onHandDelta)
			assert.True(t, errors.Is(err, ErrInvariantViolation))
			// 被拒绝的变更不得产生任何部分写入
			assert.Equal(t, 10, item.QuantityOnHand)
			assert.Equal(t, 8, item.QuantityReserved)
			assert.Equal(t, 2, item.QuantityAvailable)
		})
	}
}

func TestCloneIsolation(t *testing.T) {
	item, _ := NewInventoryItem("SKU-001", 10, 0, 0, "")
	clone := item.Clone()
	require.NoError(t, clone.ApplyDelta(5, 0))
	assert.Equal(t, 0, item.QuantityReserved)
}
