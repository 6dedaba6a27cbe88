package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	alertapp "water-quality-cloud/internal/alerts/application"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher produces alert lifecycle events to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *log.Logger
	timeout time.Duration
}

// NewKafkaPublisher creates a producer for the alert event topic.
func NewKafkaPublisher(brokers []string, topic string, logger *log.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher: empty topic")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger, timeout: 5 * time.Second}, nil
}

// Notify implements alertapp.Notifier. Failures are logged, never returned.
func (p *KafkaPublisher) Notify(ctx context.Context, event alertapp.Event) {
	if p == nil || p.writer == nil {
		return
	}
	msg, err := serializeEvent(event)
	if err != nil {
		p.logf("kafka publisher: %v", err)
		return
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logf("kafka publisher: write failed: alert=%d event=%s err=%v", event.Alert.ID, event.Type, err)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *KafkaPublisher) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// serializeEvent keys messages by location so events for one place stay ordered.
func serializeEvent(event alertapp.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Alert.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "alert_id", Value: []byte(strconv.FormatInt(event.Alert.ID, 10))},
			{Key: "severity", Value: []byte(event.Alert.Severity)},
		},
	}, nil
}
