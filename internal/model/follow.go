package model

import "time"

// Follow 用户关注预测（user_predictions）
type Follow struct {
	ID           uint `gorm:"primaryKey"`
	UserID       uint `gorm:"not null;index:idx_follow_pair,unique;index:idx_follow_user_saved"`
	PredictionID uint `gorm:"not null;index:idx_follow_pair,unique;index:idx_follow_prediction"`
	// 复合唯一键，避免重复关注
	// idx_follow_pair = (user_id, prediction_id)
	SavedAt time.Time `gorm:"autoCreateTime;index:idx_follow_user_saved"`
}

func (Follow) TableName() string { return "user_predictions" }
