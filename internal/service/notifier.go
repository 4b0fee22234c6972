package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
	"github.com/d60-Lab/vertex-tips/pkg/logger"
	"github.com/d60-Lab/vertex-tips/pkg/metrics"
)

type notifyKind int

const (
	kindFollowed notifyKind = iota + 1
	kindSettled
)

func (k notifyKind) String() string {
	if k == kindFollowed {
		return model.NotificationNewTip
	}
	return model.NotificationResult
}

type notifyJob struct {
	kind       notifyKind
	userID     uint
	prediction model.Prediction
	enqAt      time.Time
}

// FollowMessage 关注确认通知
func FollowMessage(match string) string {
	return fmt.Sprintf("Hai seguito %s", match)
}

// ResultMessage 结算通知
func ResultMessage(match, status string) string {
	outcome := "Perso"
	if status == model.StatusWon {
		outcome = "Vinto"
	}
	return fmt.Sprintf("Esito: %s è stato %s", match, outcome)
}

// Notifier 本地异步通知执行器：写库在请求返回之后进行，失败只记录不回滚
type Notifier struct {
	follows       repository.FollowRepository
	notifications repository.NotificationRepository
	publisher     EventPublisher
	tracer        trace.Tracer

	ch         chan notifyJob
	workers    int
	pageSize   int
	jobTimeout time.Duration
	pubTimeout time.Duration

	pending atomic.Int64
	stopCh  chan struct{}
	wg      sync.WaitGroup
	start   sync.Once
	stop    sync.Once
}

func NewNotifier(follows repository.FollowRepository, notifications repository.NotificationRepository, publisher EventPublisher, cfg config.NotifierConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 3 * time.Second
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Notifier{
		follows:       follows,
		notifications: notifications,
		publisher:     publisher,
		tracer:        otel.Tracer("github.com/d60-Lab/vertex-tips/notifier"),
		ch:            make(chan notifyJob, cfg.QueueSize),
		workers:       cfg.Workers,
		pageSize:      cfg.PageSize,
		jobTimeout:    cfg.JobTimeout,
		pubTimeout:    cfg.PublishTimeout,
		stopCh:        make(chan struct{}),
	}
}

// Start 启动 worker；重复调用无效
func (n *Notifier) Start() {
	n.start.Do(func() {
		for i := 0; i < n.workers; i++ {
			n.wg.Add(1)
			go n.loop()
		}
	})
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case job := <-n.ch:
			metrics.NotifierQueueLength.Set(float64(len(n.ch)))
			n.handle(job)
			n.pending.Add(-1)
		case <-n.stopCh:
			return
		}
	}
}

// Flush 等待已入队任务全部处理完
func (n *Notifier) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for n.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop 排空队列后停止 worker；ctx 到期时剩余任务被放弃
func (n *Notifier) Stop(ctx context.Context) error {
	err := n.Flush(ctx)
	n.stop.Do(func() { close(n.stopCh) })
	n.wg.Wait()
	return err
}

// EnqueueFollowed 关注确认，队列满时丢弃
func (n *Notifier) EnqueueFollowed(userID uint, p model.Prediction) {
	n.enqueue(notifyJob{kind: kindFollowed, userID: userID, prediction: p, enqAt: time.Now()})
}

// EnqueueSettled 结算后通知全部关注者
func (n *Notifier) EnqueueSettled(p model.Prediction) {
	n.enqueue(notifyJob{kind: kindSettled, prediction: p, enqAt: time.Now()})
}

func (n *Notifier) enqueue(job notifyJob) {
	n.pending.Add(1)
	select {
	case n.ch <- job:
		metrics.NotifierQueueLength.Set(float64(len(n.ch)))
	default:
		n.pending.Add(-1)
		metrics.NotifierDropped.Inc()
		logger.Warn("notifier queue full, drop job",
			zap.Stringer("type", job.kind),
			zap.Uint("prediction_id", job.prediction.ID),
			zap.Uint("user_id", job.userID),
		)
	}
}

// QueueLen 当前队列长度（采样值）
func (n *Notifier) QueueLen() int { return len(n.ch) }

func (n *Notifier) handle(job notifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), n.jobTimeout)
	defer cancel()

	ctx, span := n.tracer.Start(ctx, "notifier."+job.kind.String(), trace.WithAttributes(
		attribute.Int64("prediction.id", int64(job.prediction.ID)),
	))
	defer span.End()

	var err error
	switch job.kind {
	case kindFollowed:
		err = n.deliverFollowed(ctx, job)
	case kindSettled:
		err = n.deliverSettled(ctx, job)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.NotificationsFailed.WithLabelValues(job.kind.String()).Inc()
		sentry.CaptureException(err)
		logger.Error("notification delivery failed",
			zap.Stringer("type", job.kind),
			zap.Uint("prediction_id", job.prediction.ID),
			zap.Uint("user_id", job.userID),
			zap.Duration("queued", time.Since(job.enqAt)),
			zap.Error(err),
		)
	}
}

func (n *Notifier) deliverFollowed(ctx context.Context, job notifyJob) error {
	err := n.notifications.Create(ctx, &model.Notification{
		UserID:  job.userID,
		Message: FollowMessage(job.prediction.MatchName),
		Type:    model.NotificationNewTip,
	})
	if err != nil {
		return err
	}
	metrics.NotificationsDelivered.WithLabelValues(model.NotificationNewTip).Inc()
	return nil
}

// deliverSettled 先完成扇出再发布事件；发布失败只记录
func (n *Notifier) deliverSettled(ctx context.Context, job notifyJob) error {
	err := n.fanoutResult(ctx, job.prediction)
	n.publishSettled(ctx, job)
	return err
}

// publishSettled 使用独立的超时，broker 缓慢不影响关注者通知
func (n *Notifier) publishSettled(parent context.Context, job notifyJob) {
	ctx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(parent)), n.pubTimeout)
	defer cancel()
	if err := n.publisher.PublishSettled(ctx, newSettledEvent(job.prediction, job.enqAt)); err != nil {
		logger.Warn("publish settled event", zap.Uint("prediction_id", job.prediction.ID), zap.Error(err))
	}
}

// fanoutResult 分页拉取关注者并批量写入通知
func (n *Notifier) fanoutResult(ctx context.Context, p model.Prediction) error {
	msg := ResultMessage(p.MatchName, p.Status)
	offset := 0
	total := 0
	for {
		ids, err := n.follows.ListFollowerIDs(ctx, p.ID, offset, n.pageSize)
		if err != nil {
			return fmt.Errorf("list followers at offset %d: %w", offset, err)
		}
		if len(ids) == 0 {
			break
		}
		records := make([]model.Notification, 0, len(ids))
		for _, uid := range ids {
			records = append(records, model.Notification{UserID: uid, Message: msg, Type: model.NotificationResult})
		}
		if err := n.notifications.CreateBatch(ctx, records, n.pageSize); err != nil {
			return fmt.Errorf("insert %d notifications after %d: %w", len(records), total, err)
		}
		total += len(records)
		metrics.NotificationsDelivered.WithLabelValues(model.NotificationResult).Add(float64(len(records)))
		if len(ids) < n.pageSize {
			break
		}
		offset += n.pageSize
	}
	logger.Debug("result notifications delivered", zap.Uint("prediction_id", p.ID), zap.Int("count", total))
	return nil
}
