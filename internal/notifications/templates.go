package notifications

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leafline-books/leafline-backend/pkg/enums"
)

// Template pairs the title/message skeletons with the delivery metadata
// for one notification category. Placeholders use literal {name} tokens;
// tokens without a matching data key are left in the rendered text.
type Template struct {
	Type     enums.NotificationType
	Priority enums.NotificationPriority
	Title    string
	Message  string
}

var templates = map[enums.NotificationCategory]Template{
	enums.CategoryPriceDrop: {
		Type:     enums.NotificationTypeWishlist,
		Priority: enums.NotificationPriorityMedium,
		Title:    "Price drop: {title}",
		Message:  "{title} by {author} is now {newPrice} (was {oldPrice}, {discount}% off).",
	},
	enums.CategoryTargetPriceReached: {
		Type:     enums.NotificationTypeWishlist,
		Priority: enums.NotificationPriorityHigh,
		Title:    "Target price reached: {title}",
		Message:  "{title} hit your target price and is now {newPrice}.",
	},
	enums.CategoryBackInStock: {
		Type:     enums.NotificationTypeWishlist,
		Priority: enums.NotificationPriorityHigh,
		Title:    "Back in stock: {title}",
		Message:  "{title} by {author} is available again.",
	},
	enums.CategoryCartPriceChanged: {
		Type:     enums.NotificationTypeCart,
		Priority: enums.NotificationPriorityMedium,
		Title:    "Cart price change: {title}",
		Message:  "{title} in your cart changed from {oldPrice} to {newPrice}.",
	},
	enums.CategoryCartItemExpiring: {
		Type:     enums.NotificationTypeCart,
		Priority: enums.NotificationPriorityLow,
		Title:    "Cart item expiring: {title}",
		Message:  "{title} will leave your cart on {expiresAt}.",
	},
	enums.CategoryLowStock: {
		Type:     enums.NotificationTypeLowStock,
		Priority: enums.NotificationPriorityMedium,
		Title:    "Low stock: {title}",
		Message:  "Only {stock} copies of {title} left.",
	},
	enums.CategorySystemNotice: {
		Type:     enums.NotificationTypeSystem,
		Priority: enums.NotificationPriorityLow,
		Title:    "{title}",
		Message:  "{message}",
	},
}

// TemplateFor returns the template registered for category.
func TemplateFor(category enums.NotificationCategory) (Template, bool) {
	tpl, ok := templates[category]
	return tpl, ok
}

// Render substitutes {key} tokens from data. Unknown tokens stay as-is
// so a rendering gap is visible instead of silently blank.
func Render(template string, data map[string]string) string {
	out := template
	for key, value := range data {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

// FormatPriceCents renders integer cents as a dollar amount.
func FormatPriceCents(cents int) string {
	return "$" + decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100)).StringFixed(2)
}
