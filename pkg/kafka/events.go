package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/EchoLayerS/EchoLayer/pkg/validation"
)

// AttentionEventFunc processes a single validated attention event.
type AttentionEventFunc func(ctx context.Context, event validation.AttentionEvent) error

// DLQProducer publishes raw messages, used for dead-lettering rejected events.
type DLQProducer interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
}

// AttentionEventHandler adapts raw Kafka messages into typed attention events.
// Malformed or invalid messages are rejected (logged and dead-lettered, not
// retried) so a bad producer cannot wedge a partition; processing failures
// propagate so the consumer blocks the partition and retries on restart.
type AttentionEventHandler struct {
	handler   AttentionEventFunc
	validator *validation.EventValidator
	logger    *logrus.Logger

	dlqProducer DLQProducer
	dlqTopic    string
	consumerID  string
}

// NewAttentionEventHandler creates a handler that validates and dispatches
// attention events.
func NewAttentionEventHandler(handler AttentionEventFunc, logger *logrus.Logger) *AttentionEventHandler {
	return &AttentionEventHandler{
		handler:   handler,
		validator: validation.NewEventValidator(),
		logger:    logger,
	}
}

// WithDLQ routes rejected messages to a dead-letter topic for later replay.
func (h *AttentionEventHandler) WithDLQ(producer DLQProducer, topic, consumerID string) *AttentionEventHandler {
	h.dlqProducer = producer
	h.dlqTopic = topic
	h.consumerID = consumerID
	return h
}

func (h *AttentionEventHandler) sendToDLQ(msg Message, cause error) {
	if h.dlqProducer == nil {
		return
	}

	payload, err := EncodeDLQMessage(msg, cause, h.consumerID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode DLQ payload")
		return
	}

	if err := h.dlqProducer.ProduceMessage(h.dlqTopic, msg.Key, payload, nil); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Error("Failed to publish rejected event to DLQ")
	}
}

// HandleMessage implements the consumer Handler contract.
func (h *AttentionEventHandler) HandleMessage(ctx context.Context, msg Message) error {
	var event validation.AttentionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Error("Dropping undecodable attention event")
		h.sendToDLQ(msg, err)
		return nil
	}

	if err := h.validator.ValidateEvent(&event); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"source":     event.Source,
		}).Error("Rejecting invalid attention event")
		h.sendToDLQ(msg, err)
		return nil
	}

	if err := h.handler(ctx, event); err != nil {
		return fmt.Errorf("handle %s event %s: %w", event.EventType, event.EventID, err)
	}
	return nil
}
