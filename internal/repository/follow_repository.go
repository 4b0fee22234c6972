package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/vertex-tips/internal/model"
)

// ROIStats 关注列表的聚合结果
type ROIStats struct {
	Followed int64
	Won      int64
	Lost     int64
	Pending  int64
	// WonOdds 已赢预测的赔率之和
	WonOdds float64
}

type FollowRepository interface {
	// Create 返回 false 表示该用户已关注
	Create(ctx context.Context, userID, predictionID uint) (bool, error)
	Delete(ctx context.Context, userID, predictionID uint) (bool, error)
	// ListFollowerIDs 按关注顺序分页返回关注者
	ListFollowerIDs(ctx context.Context, predictionID uint, offset, limit int) ([]uint, error)
	FollowedPredictionIDs(ctx context.Context, userID uint) ([]uint, error)
	// ListFollowed status 为空时不过滤
	ListFollowed(ctx context.Context, userID uint, status string) ([]model.FollowedPrediction, error)
	ROI(ctx context.Context, userID uint) (ROIStats, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) Create(ctx context.Context, userID, predictionID uint) (bool, error) {
	f := &model.Follow{UserID: userID, PredictionID: predictionID}
	// 唯一键冲突时不插入，并发重复关注也只会落一行
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Delete(ctx context.Context, userID, predictionID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND prediction_id = ?", userID, predictionID).
		Delete(&model.Follow{})
	return res.RowsAffected > 0, res.Error
}

func (r *followRepository) ListFollowerIDs(ctx context.Context, predictionID uint, offset, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("prediction_id = ?", predictionID).
		Order("id").
		Offset(offset).Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *followRepository) FollowedPredictionIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("user_id = ?", userID).
		Pluck("prediction_id", &ids).Error
	return ids, err
}

func (r *followRepository) ListFollowed(ctx context.Context, userID uint, status string) ([]model.FollowedPrediction, error) {
	q := r.db.WithContext(ctx).
		Table("user_predictions").
		Select("predictions.*, user_predictions.saved_at").
		Joins("JOIN predictions ON predictions.id = user_predictions.prediction_id").
		Where("user_predictions.user_id = ?", userID)
	if status != "" {
		q = q.Where("predictions.status = ?", status)
	}
	res := make([]model.FollowedPrediction, 0)
	err := q.Order("user_predictions.saved_at DESC, predictions.id DESC").Scan(&res).Error
	return res, err
}

func (r *followRepository) ROI(ctx context.Context, userID uint) (ROIStats, error) {
	var s ROIStats
	err := r.db.WithContext(ctx).
		Table("user_predictions").
		Select(`COUNT(*) AS followed,
			COALESCE(SUM(CASE WHEN predictions.status = ? THEN 1 ELSE 0 END), 0) AS won,
			COALESCE(SUM(CASE WHEN predictions.status = ? THEN 1 ELSE 0 END), 0) AS lost,
			COALESCE(SUM(CASE WHEN predictions.status = ? THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN predictions.status = ? THEN predictions.odds ELSE 0 END), 0) AS won_odds`,
			model.StatusWon, model.StatusLost, model.StatusPending, model.StatusWon).
		Joins("JOIN predictions ON predictions.id = user_predictions.prediction_id").
		Where("user_predictions.user_id = ?", userID).
		Scan(&s).Error
	return s, err
}
