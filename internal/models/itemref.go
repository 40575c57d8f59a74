package models

import "fmt"

// ItemKind discriminates what an order item or inventory row refers to:
// a tank type or a catalog inventory item. Exactly one referenced id exists
// per ref; the kind says which table it points into.
type ItemKind string

const (
	ItemKindTank  ItemKind = "tank"
	ItemKindStock ItemKind = "stock_item"
)

func (k ItemKind) Valid() bool {
	return k == ItemKindTank || k == ItemKindStock
}

// ItemRef is a tagged reference to a deliverable good. Using a single id
// plus a kind makes the "both foreign keys null" and "both set" shapes
// unrepresentable.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   int64    `json:"id"`
}

func TankRef(tankTypeID int64) ItemRef {
	return ItemRef{Kind: ItemKindTank, ID: tankTypeID}
}

func StockItemRef(itemID int64) ItemRef {
	return ItemRef{Kind: ItemKindStock, ID: itemID}
}

func (r ItemRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid item kind %q", r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("invalid item id %d", r.ID)
	}
	return nil
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}
