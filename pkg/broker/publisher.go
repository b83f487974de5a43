package broker

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher exposes a Channel as a Watermill publisher, treating the topic as
// the routing key. The outbox forwarder uses it as its target.
type Publisher struct {
	ch Channel
}

var _ message.Publisher = (*Publisher)(nil)

func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		headers := make(map[string]string, len(msg.Metadata))
		for k, v := range msg.Metadata {
			headers[k] = v
		}
		err := p.ch.Publish(msg.Context(), Message{
			RoutingKey: topic,
			Body:       msg.Payload,
			Headers:    headers,
		})
		if err != nil {
			return fmt.Errorf("broker: forward message %s: %w", msg.UUID, err)
		}
	}
	return nil
}

// Close is a no-op: the Channel is owned by the process and closed separately.
func (p *Publisher) Close() error { return nil }
