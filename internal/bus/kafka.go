package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher forwards events to a Kafka topic per bus topic,
// prefixed with a common namespace. Delivery is asynchronous and
// best-effort; failures are logged and dropped.
type KafkaPublisher struct {
	writer *kafka.Writer
	prefix string
	log    *zap.SugaredLogger
}

// NewKafkaPublisher constructs a publisher for the given brokers. The
// writer is topic-per-message so one publisher serves every bus topic.
func NewKafkaPublisher(brokers []string, prefix string, log *zap.SugaredLogger) *KafkaPublisher {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Balancer:     &kafka.LeastBytes{},
		Dialer:       dialer,
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
		Async:        true,
	})
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if prefix == "" {
		prefix = "trader"
	}
	return &KafkaPublisher{writer: writer, prefix: prefix, log: log}
}

var _ Publisher = (*KafkaPublisher)(nil)

// Publish encodes and enqueues the event.
func (p *KafkaPublisher) Publish(topic Topic, payload map[string]interface{}) {
	value, err := json.Marshal(map[string]interface{}{
		"topic":   topic,
		"at":      time.Now().UnixMilli(),
		"payload": payload,
	})
	if err != nil {
		p.log.Warnw("encode bus event", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.prefix + "." + string(topic),
		Value: value,
	})
	if err != nil {
		p.log.Warnw("publish bus event", "topic", topic, "error", err)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
