package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"swissknife-chat/internal/model"
)

const publisherAppID = "swissknife-chat"

// MessagePublisher hands chat turns to the persistence queue. A channel
// is opened per publish; the connection is the only shared state, so
// the publisher is safe for concurrent use.
type MessagePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// Publish enqueues one turn for the persist worker. Deliveries are
// durable and tagged with the message role and conversation so queue
// tooling can tell turns apart without decoding bodies.
func (p *MessagePublisher) Publish(ctx context.Context, msg model.Message) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q failed: %w", p.queueName, err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message payload failed: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		Body:          payload,
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		AppId:         publisherAppID,
		Type:          "chat.message." + msg.Role,
		CorrelationId: strconv.FormatUint(uint64(msg.ConversationID), 10),
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, publishing); err != nil {
		return fmt.Errorf("publish message for conversation %d failed: %w", msg.ConversationID, err)
	}
	return nil
}
