package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
)

// CreatePredictionInput 赔率与日期保留原始字符串，由服务层解析
type CreatePredictionInput struct {
	Match   string
	Sport   string
	Odds    string
	Date    string
	Tipster string
}

// ROISummary 用户关注列表的收益汇总
type ROISummary struct {
	TotalFollowed int64   `json:"total_followed"`
	TotalWon      int64   `json:"total_won"`
	TotalLost     int64   `json:"total_lost"`
	TotalPending  int64   `json:"total_pending"`
	ROI           float64 `json:"roi"`
	ROIPercentage float64 `json:"roi_percentage"`
}

type PredictionService interface {
	Create(ctx context.Context, in CreatePredictionInput, callerID uint) (*model.Prediction, error)
	// ListUpcoming userID 为 0 时 is_followed 全部为 false
	ListUpcoming(ctx context.Context, userID uint) ([]model.PredictionView, error)
	ListAll(ctx context.Context, userID uint) ([]model.PredictionView, error)
	ListForAdmin(ctx context.Context) ([]model.Prediction, error)
	Latest(ctx context.Context, limit int) ([]model.Prediction, error)
	Get(ctx context.Context, id uint) (*model.Prediction, error)
	SetStatus(ctx context.Context, id uint, status string) (*model.Prediction, error)
	Follow(ctx context.Context, userID, predictionID uint) error
	Unfollow(ctx context.Context, userID, predictionID uint) error
	// ListFollowed status 为空或 "all" 时不过滤
	ListFollowed(ctx context.Context, userID uint, status string) ([]model.FollowedPrediction, error)
	ROI(ctx context.Context, userID uint) (*ROISummary, error)
}

type predictionService struct {
	predictions repository.PredictionRepository
	follows     repository.FollowRepository
	notifier    *Notifier
	now         func() time.Time
}

func NewPredictionService(predictions repository.PredictionRepository, follows repository.FollowRepository, notifier *Notifier) PredictionService {
	return &predictionService{predictions: predictions, follows: follows, notifier: notifier, now: time.Now}
}

var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseEventDate 不带时区的输入按 UTC 处理
func parseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("date", "must be a valid date or date-time")
}

func parseOdds(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("odds", "must be a number")
	}
	if !d.IsPositive() {
		return 0, invalid("odds", "must be greater than 0")
	}
	return d.InexactFloat64(), nil
}

func (s *predictionService) Create(ctx context.Context, in CreatePredictionInput, callerID uint) (*model.Prediction, error) {
	required := []struct{ field, value string }{
		{"match", in.Match}, {"sport", in.Sport}, {"odds", in.Odds}, {"date", in.Date}, {"tipster", in.Tipster},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, invalid(r.field, "is required")
		}
	}
	odds, err := parseOdds(in.Odds)
	if err != nil {
		return nil, err
	}
	eventDate, err := parseEventDate(in.Date)
	if err != nil {
		return nil, err
	}

	p := &model.Prediction{
		MatchName:   strings.TrimSpace(in.Match),
		Sport:       strings.TrimSpace(in.Sport),
		Odds:        odds,
		EventDate:   eventDate,
		TipsterName: strings.TrimSpace(in.Tipster),
		Status:      model.StatusPending,
	}
	if callerID != 0 {
		p.CreatedBy = &callerID
	}
	if err := s.predictions.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *predictionService) withFollowState(ctx context.Context, userID uint, list []model.Prediction) ([]model.PredictionView, error) {
	followed := map[uint]struct{}{}
	if userID != 0 {
		ids, err := s.follows.FollowedPredictionIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			followed[id] = struct{}{}
		}
	}
	views := make([]model.PredictionView, len(list))
	for i, p := range list {
		_, ok := followed[p.ID]
		views[i] = model.PredictionView{Prediction: p, IsFollowed: ok}
	}
	return views, nil
}

func (s *predictionService) ListUpcoming(ctx context.Context, userID uint) ([]model.PredictionView, error) {
	list, err := s.predictions.ListUpcoming(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.withFollowState(ctx, userID, list)
}

func (s *predictionService) ListAll(ctx context.Context, userID uint) ([]model.PredictionView, error) {
	list, err := s.predictions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.withFollowState(ctx, userID, list)
}

func (s *predictionService) ListForAdmin(ctx context.Context) ([]model.Prediction, error) {
	return s.predictions.ListRecent(ctx, 0)
}

func (s *predictionService) Latest(ctx context.Context, limit int) ([]model.Prediction, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.predictions.ListRecent(ctx, limit)
}

func (s *predictionService) Get(ctx context.Context, id uint) (*model.Prediction, error) {
	p, err := s.predictions.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPredictionNotFound
	}
	return p, err
}

// SetStatus 只允许 pending -> won/lost；终态不可再改
func (s *predictionService) SetStatus(ctx context.Context, id uint, status string) (*model.Prediction, error) {
	if !model.ValidStatus(status) {
		return nil, invalid("status", "must be one of: pending, won, lost")
	}

	if status == model.StatusPending {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if model.IsTerminal(p.Status) {
			return nil, ErrTerminalStatus
		}
		return p, nil
	}

	updated, err := s.predictions.Settle(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		// 区分不存在与已结算
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrTerminalStatus
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.EnqueueSettled(*p)
	}
	return p, nil
}

func (s *predictionService) Follow(ctx context.Context, userID, predictionID uint) error {
	p, err := s.Get(ctx, predictionID)
	if err != nil {
		return err
	}
	created, err := s.follows.Create(ctx, userID, predictionID)
	if err != nil {
		return err
	}
	if !created {
		return ErrAlreadyFollowing
	}
	if s.notifier != nil {
		s.notifier.EnqueueFollowed(userID, *p)
	}
	return nil
}

func (s *predictionService) Unfollow(ctx context.Context, userID, predictionID uint) error {
	removed, err := s.follows.Delete(ctx, userID, predictionID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrFollowNotFound
	}
	return nil
}

func (s *predictionService) ListFollowed(ctx context.Context, userID uint, status string) ([]model.FollowedPrediction, error) {
	status = strings.TrimSpace(status)
	if status == "all" {
		status = ""
	}
	if status != "" && !model.ValidStatus(status) {
		return nil, invalid("status", "must be one of: all, pending, won, lost")
	}
	return s.follows.ListFollowed(ctx, userID, status)
}

// ROI 赢单计 (odds-1)，输单计 -1，pending 不计
func (s *predictionService) ROI(ctx context.Context, userID uint) (*ROISummary, error) {
	st, err := s.follows.ROI(ctx, userID)
	if err != nil {
		return nil, err
	}
	roi := decimal.NewFromFloat(st.WonOdds).
		Sub(decimal.NewFromInt(st.Won)).
		Sub(decimal.NewFromInt(st.Lost))
	pct := decimal.Zero
	if st.Followed > 0 {
		pct = roi.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(st.Followed))
	}
	return &ROISummary{
		TotalFollowed: st.Followed,
		TotalWon:      st.Won,
		TotalLost:     st.Lost,
		TotalPending:  st.Pending,
		ROI:           roi.Round(2).InexactFloat64(),
		ROIPercentage: pct.Round(2).InexactFloat64(),
	}, nil
}
