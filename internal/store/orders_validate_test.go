package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazemnasser/tank-orders/internal/models"
)

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID:    1,
		Priority:      3,
		PaymentMethod: "cash",
		Items: []OrderItemRequest{
			{Item: models.TankRef(1), Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
		},
	}
}

func TestCreateOrderRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().validate())

	empty := validRequest()
	empty.Items = nil
	assertValidationError(t, empty.validate(), "items")

	badPriority := validRequest()
	badPriority.Priority = 6
	assertValidationError(t, badPriority.validate(), "priority")

	zeroQty := validRequest()
	zeroQty.Items[0].Quantity = 0
	assertValidationError(t, zeroQty.validate(), "items[0].quantity")

	freeItem := validRequest()
	freeItem.Items[0].UnitPrice = decimal.Zero
	assertValidationError(t, freeItem.validate(), "items[0].unit_price")

	badRef := validRequest()
	badRef.Items[0].Item = models.ItemRef{}
	assertValidationError(t, badRef.validate(), "items[0]")

	// Two lines for the same item ref would be checked against the same
	// inventory row; quantities belong on one line.
	duplicate := validRequest()
	duplicate.Items = append(duplicate.Items,
		OrderItemRequest{Item: models.TankRef(1), Quantity: 1, UnitPrice: decimal.NewFromInt(60)})
	assertValidationError(t, duplicate.validate(), "items[1]")

	sameIDOtherKind := validRequest()
	sameIDOtherKind.Items = append(sameIDOtherKind.Items,
		OrderItemRequest{Item: models.StockItemRef(1), Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, sameIDOtherKind.validate())
}

func TestGenerateOrderNumber(t *testing.T) {
	first := generateOrderNumber()
	second := generateOrderNumber()

	assert.True(t, strings.HasPrefix(first, "ORD-"))
	assert.NotEqual(t, first, second)

	_, err := uuid.Parse(strings.TrimPrefix(first, "ORD-"))
	require.NoError(t, err)
}

func assertValidationError(t *testing.T, err error, field string) {
	t.Helper()
	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, field, validationErr.Field)
}

func TestCursorRoundTrip(t *testing.T) {
	orig := OrderCursor{ID: 77}
	decoded, err := DecodeCursor(EncodeCursor(orig))
	require.NoError(t, err)
	assert.Equal(t, orig.ID, decoded.ID)

	// An empty cursor starts from the newest possible position.
	start, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<63-1), start.ID)

	_, err = DecodeCursor("not-base64!!")
	assert.Error(t, err)
}
