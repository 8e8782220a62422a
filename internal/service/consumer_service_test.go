package service

import (
	"context"
	"testing"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerRecordsChannelEvents(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumerService(pubSub, "proposal-events", nil, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	publisher := events.NewChannelPublisher(pubSub, "proposal-events")
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, publisher.Publish(ctx, events.NewDraftSaved("d-1", 2, false, now)))
	require.NoError(t, publisher.Publish(ctx, events.NewDraftDeleted("d-1", now)))

	require.Eventually(t, func() bool {
		return len(consumer.Recent(0)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	recent := consumer.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.TypeDraftDeleted, recent[0].Type)
	assert.Equal(t, "d-1", recent[0].Data["draft_id"])
	assert.True(t, now.Equal(recent[0].OccurredAt))
}

func TestConsumerAcksUndecodableMessages(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumerService(pubSub, "proposal-events", nil, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	require.NoError(t, pubSub.Publish("proposal-events", message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	publisher := events.NewChannelPublisher(pubSub, "proposal-events")
	require.NoError(t, publisher.Publish(ctx, events.NewDraftDeleted("d-2", time.Now())))

	require.Eventually(t, func() bool {
		return len(consumer.Recent(0)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumerWithoutSource(t *testing.T) {
	consumer := NewConsumerService(nil, "", nil, logger.NewNopLogger())
	assert.Error(t, consumer.Consume(context.Background()))
}
