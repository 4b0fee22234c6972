package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/model"
)

// SettledEvent 预测结算事件
type SettledEvent struct {
	PredictionID uint      `json:"prediction_id"`
	MatchName    string    `json:"match_name"`
	Sport        string    `json:"sport"`
	Odds         float64   `json:"odds"`
	Status       string    `json:"status"`
	SettledAt    time.Time `json:"settled_at"`
}

func newSettledEvent(p model.Prediction, at time.Time) SettledEvent {
	return SettledEvent{
		PredictionID: p.ID,
		MatchName:    p.MatchName,
		Sport:        p.Sport,
		Odds:         p.Odds,
		Status:       p.Status,
		SettledAt:    at.UTC(),
	}
}

// EventPublisher 对外发布领域事件
type EventPublisher interface {
	PublishSettled(ctx context.Context, ev SettledEvent) error
	Close() error
}

// KafkaPublisher 以预测 ID 为 key 写入 Kafka，同一预测的事件落在同一分区
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) PublishSettled(ctx context.Context, ev SettledEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.PredictionID), 10)),
		Value: payload,
		Time:  ev.SettledAt,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

type noopPublisher struct{}

func (noopPublisher) PublishSettled(context.Context, SettledEvent) error { return nil }
func (noopPublisher) Close() error                                      { return nil }

// NewPublisher 未配置 broker 时返回空实现
func NewPublisher(cfg config.KafkaConfig) EventPublisher {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return noopPublisher{}
	}
	return NewKafkaPublisher(brokers, cfg.Topic)
}
