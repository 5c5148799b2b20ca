package checkout

import (
	"errors"
	"strings"

	"bakerypos/backend/internal/domain"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrVariantNotFound = errors.New("variant not found")
)

// LineID is the cart key of an item or one of its variants.
func LineID(itemID string, variantID string) string {
	if variantID == "" {
		return itemID
	}
	return itemID + ":" + variantID
}

// AddLine puts qty of item (or its variant) in the cart, merging with an
// existing line. Stock is shown to the operator but not enforced here.
func AddLine(cart []domain.CartLine, item domain.InventoryItem, variantID string, qty int) ([]domain.CartLine, error) {
	if qty <= 0 {
		qty = 1
	}
	line := domain.CartLine{
		ID:         LineID(item.ID, variantID),
		ItemID:     item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Category:   item.Category,
		Stock:      item.Stock,
		TrackStock: item.TrackStock,
	}
	if variantID != "" {
		variant, ok := findVariant(item, variantID)
		if !ok {
			return cart, ErrVariantNotFound
		}
		line.VariantID = variant.ID
		line.Name = strings.TrimSpace(item.Name + " " + variant.Name)
		line.Price = variant.Price
		line.Stock = variant.Stock
	}

	next := append([]domain.CartLine(nil), cart...)
	for i := range next {
		if next[i].ID == line.ID {
			next[i].Qty += qty
			next[i].Price = line.Price
			next[i].Stock = line.Stock
			return next, nil
		}
	}
	line.Qty = qty
	return append(next, line), nil
}

// AdjustQty moves a line's quantity by delta; reaching zero removes the line.
func AdjustQty(cart []domain.CartLine, lineID string, delta int) ([]domain.CartLine, error) {
	next := make([]domain.CartLine, 0, len(cart))
	found := false
	for _, line := range cart {
		if line.ID != lineID {
			next = append(next, line)
			continue
		}
		found = true
		line.Qty += delta
		if line.Qty > 0 {
			next = append(next, line)
		}
	}
	if !found {
		return cart, ErrLineNotFound
	}
	return next, nil
}

func SetNote(cart []domain.CartLine, lineID string, note string) ([]domain.CartLine, error) {
	next := append([]domain.CartLine(nil), cart...)
	for i := range next {
		if next[i].ID == lineID {
			next[i].Note = strings.TrimSpace(note)
			return next, nil
		}
	}
	return cart, ErrLineNotFound
}

func findVariant(item domain.InventoryItem, variantID string) (domain.Variant, bool) {
	for _, v := range item.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return domain.Variant{}, false
}
