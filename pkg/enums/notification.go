package enums

import "fmt"

// NotificationType groups notifications by the surface that produced them.
type NotificationType string

const (
	NotificationTypeOrder     NotificationType = "order"
	NotificationTypeWishlist  NotificationType = "wishlist"
	NotificationTypeCart      NotificationType = "cart"
	NotificationTypePromotion NotificationType = "promotion"
	NotificationTypeSystem    NotificationType = "system"
	NotificationTypeLowStock  NotificationType = "low_stock"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrder,
	NotificationTypeWishlist,
	NotificationTypeCart,
	NotificationTypePromotion,
	NotificationTypeSystem,
	NotificationTypeLowStock,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationPriority orders how urgently a notification should surface.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

var validNotificationPriorities = []NotificationPriority{
	NotificationPriorityLow,
	NotificationPriorityMedium,
	NotificationPriorityHigh,
	NotificationPriorityUrgent,
}

// IsValid checks whether the given priority matches the canonical enum.
func (p NotificationPriority) IsValid() bool {
	for _, candidate := range validNotificationPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// NotificationCategory is the fine-grained template key that produced
// a notification's title and message.
type NotificationCategory string

const (
	CategoryPriceDrop          NotificationCategory = "wishlist_price_drop"
	CategoryTargetPriceReached NotificationCategory = "wishlist_target_price_reached"
	CategoryBackInStock        NotificationCategory = "wishlist_back_in_stock"
	CategoryCartPriceChanged   NotificationCategory = "cart_price_changed"
	CategoryCartItemExpiring   NotificationCategory = "cart_item_expiring"
	CategoryLowStock           NotificationCategory = "low_stock"
	CategorySystemNotice       NotificationCategory = "system_notice"
)
