package types

import "time"

// BookSnapshot is the denormalized copy of catalog state stored on
// wishlist and cart items for fast rendering. Staleness is expected;
// the enrichment engine corrects it instead of preventing it.
type BookSnapshot struct {
	Title              string `json:"title"`
	AuthorName         string `json:"authorName"`
	CoverImageURL      string `json:"coverImageUrl,omitempty"`
	PriceCents         int    `json:"priceCents"`
	OriginalPriceCents int    `json:"originalPriceCents"`
	DiscountPercentage int    `json:"discountPercentage"`
	IsAvailable        bool   `json:"isAvailable"`
	Stock              int    `json:"stock"`
	ISBN               string `json:"isbn,omitempty"`
	SKU                string `json:"sku,omitempty"`
	GenreName          string `json:"genreName,omitempty"`
}

// PriceEntry is one observation in an item's price history.
type PriceEntry struct {
	PriceCents int       `json:"priceCents"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// PriceHistory is the append-only, capped observation list.
type PriceHistory []PriceEntry

// Append records an observation and evicts the oldest entries beyond cap.
func (h PriceHistory) Append(entry PriceEntry, cap int) PriceHistory {
	out := append(h, entry)
	if cap > 0 && len(out) > cap {
		out = out[len(out)-cap:]
	}
	return out
}

// NotificationPrefs captures which catalog transitions a user wants to
// hear about for one wishlist item.
type NotificationPrefs struct {
	PriceDrops  bool `json:"priceDrops"`
	BackInStock bool `json:"backInStock"`
	NewEdition  bool `json:"newEdition"`
	AuthorNews  bool `json:"authorNews"`
}

// StringSlice persists as a JSON array (tags and similar small sets).
type StringSlice []string
