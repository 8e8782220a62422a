package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ChannelPublisher publishes onto an in-process watermill channel.
type ChannelPublisher struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewChannelPublisher(pubSub *gochannel.GoChannel, topic string) *ChannelPublisher {
	return &ChannelPublisher{pubSub: pubSub, topic: topic}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType())

	if err := p.pubSub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}
