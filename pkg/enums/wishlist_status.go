package enums

import "fmt"

// WishlistItemStatus reflects the derived state of a tracked book.
// It is recomputed from snapshot vs. current catalog state on every
// enrichment pass and never treated as ground truth on its own.
type WishlistItemStatus string

const (
	WishlistStatusAvailable      WishlistItemStatus = "available"
	WishlistStatusOutOfStock     WishlistItemStatus = "out_of_stock"
	WishlistStatusPriceDropped   WishlistItemStatus = "price_dropped"
	WishlistStatusPriceIncreased WishlistItemStatus = "price_increased"
	WishlistStatusDiscontinued   WishlistItemStatus = "discontinued"
	WishlistStatusNewEdition     WishlistItemStatus = "new_edition"
)

var validWishlistStatuses = []WishlistItemStatus{
	WishlistStatusAvailable,
	WishlistStatusOutOfStock,
	WishlistStatusPriceDropped,
	WishlistStatusPriceIncreased,
	WishlistStatusDiscontinued,
	WishlistStatusNewEdition,
}

// IsValid checks whether the given status matches the canonical enum.
func (s WishlistItemStatus) IsValid() bool {
	for _, candidate := range validWishlistStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWishlistItemStatus converts raw strings into WishlistItemStatus.
func ParseWishlistItemStatus(value string) (WishlistItemStatus, error) {
	for _, candidate := range validWishlistStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wishlist item status %q", value)
}
