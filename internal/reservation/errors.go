package reservation

import (
	"fmt"
	"strings"

	"github.com/hazemnasser/tank-orders/internal/models"
)

// ShortItem names one requested item the store cannot cover.
type ShortItem struct {
	Item      models.ItemRef `json:"item"`
	Requested int            `json:"requested"`
	Available int            `json:"available"`
}

// InsufficientInventoryError aborts a reservation attempt entirely; no
// partial reservation survives it.
type InsufficientInventoryError struct {
	StoreID int64
	Short   []ShortItem
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Short))
	for _, s := range e.Short {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.Item, s.Requested, s.Available))
	}
	return fmt.Sprintf("insufficient inventory at store %d: %s", e.StoreID, strings.Join(parts, ", "))
}
