package provision

import (
	"context"
	"log/slog"
	"strconv"

	"provisioner/internal/platform/kafka/consumer"
	"provisioner/internal/platform/kafka/producer"
	"provisioner/internal/platform/metrics"

	"github.com/google/uuid"
)

// DeadLetterPublisher republishes failed events to a dead-letter topic with
// headers carrying the failure context and original bus coordinates, so
// events can be inspected and replayed manually.
type DeadLetterPublisher struct {
	producer *producer.Producer
	topic    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDeadLetter creates a dead-letter publisher targeting the given topic.
func NewDeadLetter(p *producer.Producer, topic string, m *metrics.Metrics, logger *slog.Logger) *DeadLetterPublisher {
	return &DeadLetterPublisher{
		producer: p,
		topic:    topic,
		metrics:  m,
		logger:   logger,
	}
}

// Publish sends the failed event to the dead-letter topic. Best-effort: a
// publish failure is logged and the event is dropped.
func (p *DeadLetterPublisher) Publish(ctx context.Context, msg *consumer.Message, stage, reason string) {
	key := msg.Key
	if len(key) == 0 {
		key = []byte(uuid.NewString())
	}

	err := p.producer.Produce(ctx, &producer.Message{
		Topic: p.topic,
		Key:   key,
		Value: msg.Value,
		Headers: map[string]string{
			"error_stage":      stage,
			"error_reason":     reason,
			"origin_topic":     msg.Topic,
			"origin_partition": strconv.FormatInt(int64(msg.Partition), 10),
			"origin_offset":    strconv.FormatInt(msg.Offset, 10),
		},
	})
	if err != nil {
		p.logger.Error("failed to publish to dead-letter topic",
			"topic", p.topic,
			"origin_topic", msg.Topic,
			"origin_partition", msg.Partition,
			"origin_offset", msg.Offset,
			"error", err,
		)
		return
	}

	if p.metrics != nil {
		p.metrics.IncrementDeadLettered()
	}
}

// NoopDeadLetter discards failed events. Used when no dead-letter topic is
// configured.
type NoopDeadLetter struct{}

// Publish discards the event.
func (NoopDeadLetter) Publish(context.Context, *consumer.Message, string, string) {}
