package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	msg := &Message{ID: "run-42", Body: []byte(`{"run_id":42}`), Timestamp: ts}
	msg.SetHeader("x-trace-id", "trace-1")

	km := toKafkaMessage("grade", msg)
	if km.Topic != "grade" {
		t.Errorf("Topic = %q", km.Topic)
	}
	if string(km.Key) != "run-42" {
		t.Errorf("Key = %q", km.Key)
	}
	if !km.Time.Equal(ts) {
		t.Errorf("Time = %v", km.Time)
	}

	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["x-trace-id"] != "trace-1" {
		t.Errorf("custom header lost: %v", headers)
	}
	if headers[headerID] != "run-42" {
		t.Errorf("id header = %q", headers[headerID])
	}
	if headers[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Errorf("timestamp header = %q", headers[headerTimestamp])
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
}
