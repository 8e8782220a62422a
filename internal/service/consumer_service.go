package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/pkg/events"
	pktNats "grant-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const activityCapacity = 200

// ActivityEntry is one consumed proposal event.
type ActivityEntry struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurredAt"`
}

type IConsumerService interface {
	Consume(ctx context.Context) error
	// Recent returns up to limit entries, newest first.
	Recent(limit int) []ActivityEntry
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	natsSub   *pktNats.Subscriber
	logger    logger.ILogger

	mu      sync.Mutex
	entries []ActivityEntry
}

// NewConsumerService builds the activity log consumer. With a NATS
// subscriber it reads the durable proposal stream; otherwise it reads the
// in-process channel.
func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	natsSub *pktNats.Subscriber,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		natsSub:   natsSub,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if cs.natsSub != nil {
		return cs.natsSub.Subscribe(ctx, pktNats.SubjectPrefix+".>", "activity-log", func(_ context.Context, e events.Event) error {
			cs.record(e)
			return nil
		})
	}
	if cs.pubSub == nil {
		return fmt.Errorf("no event source configured")
	}

	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()
	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error("Activity", "Failed to unmarshal event", map[string]interface{}{"message_id": msg.UUID, "error": err.Error()})
		// Ack invalid messages to prevent infinite redelivery.
		msg.Ack()
		return
	}
	cs.record(event)
	msg.Ack()
}

func (cs *consumerService) record(e events.Event) {
	entry := ActivityEntry{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()}

	cs.mu.Lock()
	cs.entries = append(cs.entries, entry)
	if len(cs.entries) > activityCapacity {
		cs.entries = append([]ActivityEntry(nil), cs.entries[len(cs.entries)-activityCapacity:]...)
	}
	cs.mu.Unlock()

	cs.logger.Info("Activity", entry.Type, entry.Data)
}

func (cs *consumerService) Recent(limit int) []ActivityEntry {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if limit <= 0 || limit > len(cs.entries) {
		limit = len(cs.entries)
	}
	out := make([]ActivityEntry, 0, limit)
	for i := len(cs.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cs.entries[i])
	}
	return out
}
