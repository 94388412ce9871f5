package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/model"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewPublisherValidates(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "t"})
	assert.Error(t, err)
	_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "notifications"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestPublishKeysByPlant(t *testing.T) {
	w := &recordingWriter{}
	p := &Publisher{writer: w}
	n := model.Notification{
		ID:               "n1",
		PlantID:          "p1",
		NotificationType: model.NotificationScheduleReady,
		Title:            "Schedule Ready for Upload",
		Priority:         model.PriorityUrgent,
		CreatedAt:        time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), n))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "p1", string(msg.Key))
	assert.Equal(t, "priority", msg.Headers[1].Key)
	assert.Equal(t, "URGENT", string(msg.Headers[1].Value))

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "n1", decoded.ID)
	assert.Equal(t, model.NotificationScheduleReady, decoded.NotificationType)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Publisher{writer: &recordingWriter{err: boom}}
	err := p.Publish(context.Background(), model.Notification{ID: "n1"})
	assert.ErrorIs(t, err, boom)
}
