package rule

import (
	"context"
	"testing"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/service/inventory/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELPolicyMatchesFirstRule(t *testing.T) {
	policy, err := NewCELPolicy([]bootstrap.ReplenishRule{
		{Name: "low-available", Expression: "available <= reorder_level"},
		{Name: "fully-reserved", Expression: "reserved == on_hand && on_hand > 0"},
	})
	require.NoError(t, err)

	item := &domain.InventoryItem{
		ProductID:         "SKU-001",
		QuantityOnHand:    20,
		QuantityReserved:  5,
		QuantityAvailable: 15,
		ReorderLevel:      10,
	}
	ok, _, err := policy.ShouldReorder(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, ok)

	item.QuantityReserved = 12
	item.QuantityAvailable = 8
	ok, rule, err := policy.ShouldReorder(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "low-available", rule)

	item.QuantityReserved = 20
	item.QuantityAvailable = 0
	ok, rule, err = policy.ShouldReorder(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, ok)
	// 按配置顺序命中第一条
	assert.Equal(t, "low-available", rule)
}

func TestCELPolicyRejectsBadExpression(t *testing.T) {
	_, err := NewCELPolicy([]bootstrap.ReplenishRule{
		{Name: "broken", Expression: "available <=="},
	})
	assert.Error(t, err)

	// 未声明的变量同样在编译期拒绝
	_, err = NewCELPolicy([]bootstrap.ReplenishRule{
		{Name: "unknown-var", Expression: "warehouse_count > 0"},
	})
	assert.Error(t, err)
}

func TestNoopPolicy(t *testing.T) {
	ok, rule, err := NoopPolicy{}.ShouldReorder(context.Background(), &domain.InventoryItem{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rule)
}
