package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/carelink/patient-platform/pkg/config"
	"github.com/carelink/patient-platform/pkg/logger"
)

// Broker holds the AMQP connection and channel used for event publishing
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.BrokerConfig
	logger  *logger.Logger
}

// Connect establishes the AMQP connection and opens a channel
func Connect(cfg *config.BrokerConfig, log *logger.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open broker channel: %w", err)
	}

	b := &Broker{
		conn:    conn,
		channel: channel,
		config:  cfg,
		logger:  log,
	}

	log.WithField("queue", cfg.Queue).Info("Broker connection established successfully")
	return b, nil
}

// Channel returns the open AMQP channel
func (b *Broker) Channel() *amqp.Channel {
	return b.channel
}

// Close closes the channel and the underlying connection
func (b *Broker) Close() error {
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to close broker channel")
		}
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Health checks the broker connection health
func (b *Broker) Health() error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("broker connection is closed")
	}
	return nil
}
