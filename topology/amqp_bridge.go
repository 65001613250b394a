// AMQP interop bridge: mirrors the in-process Router's destination-queue
// decisions onto a real AMQP exchange, so an external consumer speaking the
// wire protocol can observe the same routing the engine computed internally.
// The engine's own Router/Scheduler/Runtime never depend on this path —
// see DESIGN.md for why it stays optional, test-only plumbing.
package topology

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/queue"
)

// WireEnvelope is the durable, JSON-serializable projection of an Envelope
// published onto the AMQP exchange. It carries enough of the envelope to
// reconstruct routing and retry context on the wire without exposing the
// envelope's internal cancellation token.
type WireEnvelope struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Correlation string    `json:"correlation,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	Payload     []byte    `json:"payload"`
	ContentType string    `json:"contentType,omitempty"`
	RoutingKey  string    `json:"routingKey"`
	Priority    int       `json:"priority"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"maxAttempts"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// WireEnvelopeFromEnvelope projects an Envelope into its wire form.
func WireEnvelopeFromEnvelope(e *envelope.Envelope) WireEnvelope {
	return WireEnvelope{
		ID:          e.ID,
		Kind:        string(e.Kind),
		Correlation: e.Correlation,
		Parent:      e.Parent,
		Payload:     e.Payload,
		ContentType: e.ContentType,
		RoutingKey:  e.RoutingKey,
		Priority:    e.Priority,
		Attempt:     e.Attempt,
		MaxAttempts: e.MaxAttempts,
		EnqueuedAt:  e.EnqueuedAt,
	}
}

// AMQPBridge mirrors Router decisions onto a real AMQP exchange. It is not
// in the envelope's critical path: the Router computes destination queues
// in-process, and the bridge separately republishes the same envelope onto
// the wire for any external consumer that wants to observe it over AMQP.
type AMQPBridge struct {
	connection queue.AMQPConnection
	channel    queue.AMQPChannel
	exchange   string
}

// BridgeConfig configures the AMQP bridge.
type BridgeConfig struct {
	AMQPURL  string // AMQP broker URL
	Exchange string // exchange to declare and publish onto
}

// NewAMQPBridge connects to the broker and declares the mirror exchange.
func NewAMQPBridge(config BridgeConfig) (*AMQPBridge, error) {
	dialer := &queue.RealAMQPDialer{}
	return NewAMQPBridgeWithDialer(config, dialer)
}

// NewAMQPBridgeWithDialer allows injecting a custom dialer for testing.
func NewAMQPBridgeWithDialer(config BridgeConfig, dialer queue.AMQPDialer) (*AMQPBridge, error) {
	conn, err := dialer.Dial(config.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &AMQPBridge{
		connection: conn,
		channel:    ch,
		exchange:   config.Exchange,
	}, nil
}

// Mirror publishes an envelope to each destination queue a routing decision
// named, using the queue name as the AMQP routing key on the mirror
// exchange. It declares each destination queue durable before publishing so
// an external consumer can bind to it without racing the first publish.
func (b *AMQPBridge) Mirror(e *envelope.Envelope, destinationQueues []string) error {
	body, err := json.Marshal(WireEnvelopeFromEnvelope(e))
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	for _, queueName := range destinationQueues {
		if _, err := b.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare mirror queue %s: %w", queueName, err)
		}

		err := b.channel.Publish(
			b.exchange,
			queueName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				MessageId:   e.ID,
				Body:        body,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish envelope %s to %s: %w", e.ID, queueName, err)
		}
	}

	return nil
}

// Close closes the bridge's channel and connection.
func (b *AMQPBridge) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.connection != nil {
		b.connection.Close()
	}
	return nil
}
