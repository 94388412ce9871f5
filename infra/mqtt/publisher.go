package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/notify"
)

// Publisher sends notifications to "<prefix>/<plant>/notifications".
type Publisher struct {
	client Client
	prefix string
	qos    byte
}

// NewPublisher returns a notify.Publisher on client.
func NewPublisher(client Client, cfg Config) *Publisher {
	cfg.SetDefaults()
	return &Publisher{client: client, prefix: cfg.TopicPrefix, qos: cfg.QoS}
}

func (p *Publisher) Publish(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return p.client.Publish(NotificationTopic(p.prefix, n.PlantID), payload, p.qos)
}

var _ notify.Publisher = (*Publisher)(nil)
