package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vertex",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vertex",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// NotificationsDelivered 成功写入的通知数（按类型）
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vertex",
		Name:      "notifications_delivered_total",
		Help:      "Notifications persisted by the notifier.",
	}, []string{"type"})

	// NotificationsFailed 写入失败的通知数（按类型）
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vertex",
		Name:      "notifications_failed_total",
		Help:      "Notifications that could not be persisted.",
	}, []string{"type"})

	// NotifierDropped 队列满被丢弃的任务数
	NotifierDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vertex",
		Name:      "notifier_jobs_dropped_total",
		Help:      "Notifier jobs dropped because the queue was full.",
	})

	// NotifierQueueLength 当前排队任务数（采样）
	NotifierQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vertex",
		Name:      "notifier_queue_length",
		Help:      "Notifier jobs waiting in the queue.",
	})

	// LoginFailures 登录失败次数
	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vertex",
		Name:      "login_failures_total",
		Help:      "Rejected login attempts.",
	})
)

// Middleware 记录请求计数与耗时；未匹配路由归为 "unmatched"
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
