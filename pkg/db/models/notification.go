package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/enums"
)

// Notification stores one-way in-app messages scoped to users.
// Rows are immutable except for the read/unread transition.
type Notification struct {
	ID         uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index:notifications_user_id_idx"`
	Type       enums.NotificationType     `gorm:"column:type;type:text;not null"`
	Category   enums.NotificationCategory `gorm:"column:category;type:text;not null"`
	Title      string                     `gorm:"column:title;type:text;not null"`
	Message    string                     `gorm:"column:message;type:text;not null"`
	Data       map[string]any             `gorm:"column:data;type:jsonb;serializer:json"`
	Priority   enums.NotificationPriority `gorm:"column:priority;type:text;not null;default:'medium'"`
	ActionURL  *string                    `gorm:"column:action_url;type:text"`
	ActionText *string                    `gorm:"column:action_text;type:text"`
	Source     string                     `gorm:"column:source;type:text"`
	ExpiresAt  *time.Time                 `gorm:"column:expires_at"`
	ReadAt     *time.Time                 `gorm:"column:read_at"`
	CreatedAt  time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
