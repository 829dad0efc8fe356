package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublish(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	k := &Kafka{writer: w, topic: "rulesets"}
	at := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	err := k.Publish(context.Background(), Event{
		Type:  TypeCalibrated,
		Tag:   "cal-20250304-120000",
		RunID: "01JNK",
		At:    at,
		Data:  map[string]any{"composite": 0.42},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "rulesets", msg.Topic)
	assert.Equal(t, "cal-20250304-120000", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, TypeCalibrated, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "01JNK", got.RunID)
	assert.Equal(t, 0.42, got.Data["composite"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublishError(t *testing.T) {
	t.Parallel()
	k := &Kafka{writer: &fakeWriter{err: errors.New("broker down")}, topic: "t"}
	err := k.Publish(context.Background(), Event{Type: TypeActivated, Tag: "x"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafka(t *testing.T) {
	t.Parallel()
	_, err := NewKafka()
	assert.Error(t, err)

	k, err := NewKafka(WithBrokers([]string{"localhost:9092"}), WithTopic("fx"), WithWriteTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	assert.Equal(t, "fx", k.topic)
}

func TestNop(t *testing.T) {
	t.Parallel()
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
