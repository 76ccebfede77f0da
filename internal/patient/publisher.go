package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/carelink/patient-platform/pkg/broker"
	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/types"
)

// QueuePublisher enqueues patient events onto a durable broker queue with
// publisher confirms. Each Enqueue is exactly one send bounded by the
// configured timeout; a failed or unconfirmed send is reported to the
// caller, who decides what the failure means.
//
// Delivery is at-least-once: a confirm can be lost after the broker has
// the message, so consumers deduplicate on the event identifier.
type QueuePublisher struct {
	channel  *amqp.Channel
	queue    string
	timeout  time.Duration
	confirms chan amqp.Confirmation
	logger   *logger.Logger

	// Confirms arrive in publish order, so sends are serialized
	mu sync.Mutex
}

// NewQueuePublisher declares the queue and puts the channel into confirm mode
func NewQueuePublisher(b *broker.Broker, cfg config.BrokerConfig, log *logger.Logger) (*QueuePublisher, error) {
	channel := b.Channel()

	_, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if err := channel.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &QueuePublisher{
		channel:  channel,
		queue:    cfg.Queue,
		timeout:  time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
		confirms: channel.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:   log,
	}, nil
}

// Enqueue publishes a patient created event and waits for the broker to
// confirm it, up to the publish timeout.
func (p *QueuePublisher) Enqueue(ctx context.Context, event *types.PatientCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         event.EventType,
		Timestamp:    time.Now().UTC(),
	}

	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event to queue %s: %w", p.queue, err)
	}

	select {
	case confirmed := <-p.confirms:
		if !confirmed.Ack {
			return fmt.Errorf("broker did not confirm event %s", event.EventID)
		}
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for broker confirm: %w", ctx.Err())
	}

	return nil
}
