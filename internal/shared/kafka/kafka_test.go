package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestWriteJSON_SetsTopicKeyAndHeaders(t *testing.T) {
	w := &captureWriter{}
	err := WriteJSON(context.Background(), w, "market_inbox.bob", "alice", []byte(`{"a":1}`),
		kafka.Header{Key: "kind", Value: []byte("odds_update")})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != "market_inbox.bob" || string(m.Key) != "alice" || string(m.Value) != `{"a":1}` {
		t.Errorf("message = %+v", m)
	}
	if len(m.Headers) != 1 || m.Headers[0].Key != "kind" {
		t.Errorf("headers = %+v", m.Headers)
	}
	if m.Time.IsZero() {
		t.Error("message time not set")
	}
}

func TestWriteJSON_PropagatesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	if err := WriteJSON(context.Background(), &captureWriter{err: boom}, "t", "k", nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestNewWriterHasNoFixedTopic(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"})
	defer w.Close()
	if w.Topic != "" {
		t.Fatalf("writer topic = %q, messages carry their own", w.Topic)
	}
}
