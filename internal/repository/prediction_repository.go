package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/internal/model"
)

// PredictionRepository 预测仓储接口
type PredictionRepository interface {
	Create(ctx context.Context, p *model.Prediction) error

	// Get 不存在时返回 gorm.ErrRecordNotFound
	Get(ctx context.Context, id uint) (*model.Prediction, error)

	// ListUpcoming 比赛时间晚于 after 的预测，按比赛时间升序
	ListUpcoming(ctx context.Context, after time.Time) ([]model.Prediction, error)

	// ListAll 全部预测，按比赛时间升序
	ListAll(ctx context.Context) ([]model.Prediction, error)

	// ListRecent 按创建时间倒序；limit <= 0 不限制
	ListRecent(ctx context.Context, limit int) ([]model.Prediction, error)

	// Settle 仅当当前状态为 pending 时写入终态，返回是否更新
	Settle(ctx context.Context, id uint, status string) (bool, error)
}

type predictionRepository struct {
	db *gorm.DB
}

func NewPredictionRepository(db *gorm.DB) PredictionRepository {
	return &predictionRepository{db: db}
}

func (r *predictionRepository) Create(ctx context.Context, p *model.Prediction) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *predictionRepository) Get(ctx context.Context, id uint) (*model.Prediction, error) {
	var p model.Prediction
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *predictionRepository) ListUpcoming(ctx context.Context, after time.Time) ([]model.Prediction, error) {
	res := make([]model.Prediction, 0)
	err := r.db.WithContext(ctx).
		Where("event_date > ?", after.UTC()).
		Order("event_date ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *predictionRepository) ListAll(ctx context.Context) ([]model.Prediction, error) {
	res := make([]model.Prediction, 0)
	err := r.db.WithContext(ctx).Order("event_date ASC, id ASC").Find(&res).Error
	return res, err
}

func (r *predictionRepository) ListRecent(ctx context.Context, limit int) ([]model.Prediction, error) {
	res := make([]model.Prediction, 0)
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&res).Error
	return res, err
}

func (r *predictionRepository) Settle(ctx context.Context, id uint, status string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Prediction{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}
