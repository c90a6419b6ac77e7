package service

import (
	"context"
	"encoding/json"

	"ai-knowledge-be/internal/dto"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/pkg/events"
	"ai-knowledge-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the in-process usage topic: every completed chat
// turn is logged for accounting and, when NATS is configured, forwarded to
// the event bus for other instances.
type consumerService struct {
	pubSub         *gochannel.GoChannel
	topicName      string
	eventPublisher *nats.Publisher
	log            logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	eventPublisher *nats.Publisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:         pubSub,
		topicName:      topicName,
		eventPublisher: eventPublisher,
		log:            log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.ChatCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.log.Error("consumer", "failed to unmarshal usage message", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.log.Info("consumer", "chat usage recorded", map[string]interface{}{
		"session_id":    payload.SessionId,
		"user_id":       payload.UserId,
		"persona":       payload.Persona,
		"search_count":  payload.SearchCount,
		"source_count":  payload.SourceCount,
		"confidence":    payload.Confidence,
		"is_multimodal": payload.IsMultimodal,
		"duration_ms":   payload.DurationMs,
	})

	if cs.eventPublisher != nil {
		evt := events.NewChatCompletedEvent(
			payload.SessionId, payload.UserId, payload.Persona,
			payload.SearchCount, payload.SourceCount,
			payload.Confidence, payload.IsMultimodal, payload.DurationMs,
		)
		if err := cs.eventPublisher.Publish(ctx, evt); err != nil {
			cs.log.Warn("consumer", "event bus publish failed", map[string]interface{}{
				"session_id": payload.SessionId,
				"error":      err.Error(),
			})
		}
	}

	msg.Ack()
}
