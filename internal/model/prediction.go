package model

import "time"

// 预测状态：pending 为初始状态，won/lost 为终态
const (
	StatusPending = "pending"
	StatusWon     = "won"
	StatusLost    = "lost"
)

// ValidStatus 状态只能是 pending、won、lost
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusWon || s == StatusLost
}

// IsTerminal won/lost 之后不允许再变更
func IsTerminal(s string) bool { return s == StatusWon || s == StatusLost }

// Prediction 投注推荐
type Prediction struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	MatchName   string    `json:"match_name" gorm:"type:varchar(255);not null"`
	Sport       string    `json:"sport" gorm:"type:varchar(64);not null"`
	Odds        float64   `json:"odds" gorm:"not null"`
	EventDate   time.Time `json:"event_date" gorm:"index;not null"`
	TipsterName string    `json:"tipster_name" gorm:"type:varchar(255);not null"`
	Status      string    `json:"status" gorm:"type:varchar(16);index;not null;default:'pending'"`
	CreatedBy   *uint     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (Prediction) TableName() string { return "predictions" }

// PredictionView 列表项，附带当前用户是否已关注
type PredictionView struct {
	Prediction
	IsFollowed bool `json:"is_followed"`
}

// FollowedPrediction 已关注的预测，附带关注时间
type FollowedPrediction struct {
	Prediction
	SavedAt time.Time `json:"saved_at"`
}
