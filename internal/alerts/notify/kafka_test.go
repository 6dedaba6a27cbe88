package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	alertapp "water-quality-cloud/internal/alerts/application"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func headerValue(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestSerializeEvent(t *testing.T) {
	alert := testAlert(55, "critical", time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC))
	msg, err := serializeEvent(alertapp.Event{Type: alertapp.EventCreated, Alert: *alert})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(msg.Key) != "Machakos" {
		t.Fatalf("expected location key, got %q", msg.Key)
	}
	if got := headerValue(msg, "event_type"); got != "created" {
		t.Fatalf("event_type header = %q", got)
	}
	if got := headerValue(msg, "alert_id"); got != "55" {
		t.Fatalf("alert_id header = %q", got)
	}
	if got := headerValue(msg, "severity"); got != "critical" {
		t.Fatalf("severity header = %q", got)
	}

	var decoded alertapp.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Type != alertapp.EventCreated || decoded.Alert.ID != 55 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaPublisherNotify(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer, timeout: time.Second}
	alert := testAlert(56, "high", time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC))

	publisher.Notify(context.Background(), alertapp.Event{Type: alertapp.EventResolved, Alert: *alert})
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	if got := headerValue(writer.messages[0], "event_type"); got != "resolved" {
		t.Fatalf("event_type header = %q", got)
	}
	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisherLogsWriteFailure(t *testing.T) {
	var out bytes.Buffer
	writer := &fakeWriter{err: errors.New("broker unreachable")}
	publisher := &KafkaPublisher{writer: writer, logger: log.New(&out, "", 0)}

	publisher.Notify(context.Background(), alertapp.Event{Type: alertapp.EventCreated, Alert: *testAlert(57, "critical", time.Now())})
	if !strings.Contains(out.String(), "broker unreachable") {
		t.Fatalf("expected logged failure, got %q", out.String())
	}
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "alert-events", nil); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, "", nil); err == nil {
		t.Fatal("expected error without topic")
	}
	publisher, err := NewKafkaPublisher([]string{"localhost:9092"}, "alert-events", nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
