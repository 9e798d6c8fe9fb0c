package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marloweh/tutti/internal/domain"
)

const (
	// NotesExchange is the topic exchange carrying all note traffic. Rooms
	// are separated by routing key, not by exchange.
	NotesExchange = "tutti.notes"

	noteRoutingPrefix = "note."
)

// AMQP is the RabbitMQ-backed Bus used when rooms span processes. Each
// subscription gets its own exclusive auto-delete queue bound to the room's
// routing key, so fan-out happens on the broker.
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu     sync.Mutex
	closed bool
}

func NewAMQP(uri string) (*AMQP, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		NotesExchange,
		"topic",
		false, // durable: note events are ephemeral, no reason to survive restarts
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", NotesExchange, err)
	}

	return &AMQP{
		conn:    conn,
		channel: ch,
	}, nil
}

func routingKey(roomID string) string {
	return noteRoutingPrefix + roomID
}

func (a *AMQP) Publish(ctx context.Context, roomID string, event domain.NoteEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrBusClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal note event: %w", err)
	}

	return a.channel.PublishWithContext(ctx,
		NotesExchange,
		routingKey(roomID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (a *AMQP) Subscribe(roomID string, onEvent Handler, onError ErrorHandler) (UnsubscribeFunc, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrBusClosed
	}

	// Each subscriber consumes from its own channel so cancellation does
	// not disturb other subscriptions sharing the connection.
	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // broker-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare subscriber queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey(roomID), NotesExchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue to %s: %w", NotesExchange, err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // broker-named consumer tag
		true,  // auto-ack: a lost note is cheaper than a replayed one
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		for msg := range deliveries {
			var event domain.NoteEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				if onError != nil {
					onError(fmt.Errorf("failed to unmarshal note event: %w", err))
				}
				continue
			}
			onEvent(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { ch.Close() })
	}, nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
