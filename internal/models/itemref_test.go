package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRefConstructors(t *testing.T) {
	tank := TankRef(3)
	assert.Equal(t, ItemKindTank, tank.Kind)
	assert.Equal(t, int64(3), tank.ID)
	require.NoError(t, tank.Validate())

	item := StockItemRef(8)
	assert.Equal(t, ItemKindStock, item.Kind)
	require.NoError(t, item.Validate())

	assert.NotEqual(t, tank, ItemRef{Kind: ItemKindStock, ID: 3}, "same id under a different kind is a different item")
}

func TestItemRefValidate(t *testing.T) {
	assert.Error(t, ItemRef{}.Validate())
	assert.Error(t, ItemRef{Kind: "pallet", ID: 1}.Validate())
	assert.Error(t, ItemRef{Kind: ItemKindTank, ID: 0}.Validate())
	assert.Error(t, ItemRef{Kind: ItemKindTank, ID: -4}.Validate())
}

func TestItemRefString(t *testing.T) {
	assert.Equal(t, "tank/5", TankRef(5).String())
	assert.Equal(t, "stock_item/2", StockItemRef(2).String())
}

func TestOrderStatusHelpers(t *testing.T) {
	assert.True(t, OrderStatusPending.Valid())
	assert.True(t, OrderStatusFailed.Valid())
	assert.False(t, OrderStatus("shipped").Valid())

	assert.True(t, OrderStatusFulfilled.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusDelivered.Terminal())
}
