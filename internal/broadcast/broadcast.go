package broadcast

import (
	"context"
	"encoding/json"
	"time"

	rediscommon "critical-alerts/common/redis"
	"critical-alerts/internal/metrics"
	"critical-alerts/internal/models"
	"critical-alerts/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

// StreamPublisher 将每次通知变更追加到 Redis Stream，供其他服务消费
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher 创建 Stream 发布器
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Handle 实现 store.Listener
func (p *StreamPublisher) Handle(change store.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	id, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, change)
	if err != nil {
		metrics.BroadcastFailures.WithLabelValues("stream").Inc()
		p.logger.Error("Failed to publish notification change to stream",
			zap.String("stream", p.stream),
			zap.String("change", string(change.Kind)),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Published notification change",
		zap.String("stream", p.stream),
		zap.String("stream_id", id),
		zap.String("change", string(change.Kind)),
		zap.String("patient_id", change.PatientID),
	)
}

// MessagePublisher MQTT 发布能力（common/mqtt.Client 实现）
type MessagePublisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// Snapshot 通知板快照，以 retained 消息发布，新订阅者立即拿到当前状态
type Snapshot struct {
	Notifications []models.CriticalNotification `json:"notifications"`
	Count         int                           `json:"count"`
	UpdatedAt     time.Time                     `json:"updatedAt"`
}

// MQTTPublisher 每次变更后向排队显示屏推送完整通知快照
type MQTTPublisher struct {
	publisher MessagePublisher
	topic     string
	list      func() []models.CriticalNotification
	logger    *zap.Logger
	now       func() time.Time
}

// NewMQTTPublisher 创建 MQTT 发布器，list 返回发布时刻的通知列表
func NewMQTTPublisher(publisher MessagePublisher, topic string, list func() []models.CriticalNotification, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		publisher: publisher,
		topic:     topic,
		list:      list,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle 实现 store.Listener
func (p *MQTTPublisher) Handle(change store.Change) {
	if err := p.Publish(); err != nil {
		p.logger.Error("Failed to publish notification snapshot",
			zap.String("topic", p.topic),
			zap.String("change", string(change.Kind)),
			zap.Error(err),
		)
	}
}

// Publish 发布当前快照
func (p *MQTTPublisher) Publish() error {
	notifications := p.list()
	if notifications == nil {
		notifications = []models.CriticalNotification{}
	}

	payload, err := json.Marshal(Snapshot{
		Notifications: notifications,
		Count:         len(notifications),
		UpdatedAt:     p.now(),
	})
	if err != nil {
		metrics.BroadcastFailures.WithLabelValues("mqtt").Inc()
		return err
	}

	if err := p.publisher.Publish(p.topic, true, payload); err != nil {
		metrics.BroadcastFailures.WithLabelValues("mqtt").Inc()
		return err
	}
	return nil
}
