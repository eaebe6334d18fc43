package enums

import "fmt"

// CartItemStatus tracks the derived state of a cart line item.
type CartItemStatus string

const (
	CartItemStatusOK           CartItemStatus = "ok"
	CartItemStatusOutOfStock   CartItemStatus = "out_of_stock"
	CartItemStatusPriceChanged CartItemStatus = "price_changed"
	CartItemStatusExpired      CartItemStatus = "expired"
)

var validCartItemStatuses = []CartItemStatus{
	CartItemStatusOK,
	CartItemStatusOutOfStock,
	CartItemStatusPriceChanged,
	CartItemStatusExpired,
}

// IsValid checks whether the given status matches the canonical enum.
func (s CartItemStatus) IsValid() bool {
	for _, candidate := range validCartItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCartItemStatus converts raw strings into CartItemStatus.
func ParseCartItemStatus(value string) (CartItemStatus, error) {
	for _, candidate := range validCartItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart item status %q", value)
}
