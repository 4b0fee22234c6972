package model

import "time"

// 通知类型
const (
	NotificationNewTip = "new_tip"
	NotificationResult = "result"
)

// Notification 站内通知
type Notification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index:idx_notification_user_created"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	Type      string    `json:"type" gorm:"type:varchar(32);not null"`
	Read      bool      `json:"read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notification_user_created"`
}

func (Notification) TableName() string { return "notifications" }
