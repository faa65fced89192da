// Package worker drains the message persistence queue so chat turns
// reach MySQL without blocking the request path.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"swissknife-chat/internal/model"
)

// messageCreator writes one chat message row.
type messageCreator interface {
	Create(msg *model.Message) error
}

// historyInvalidator drops a conversation's cached transcript. Rows
// persisted here are invisible to the cache until it refills, so every
// successful write evicts the stale snapshot.
type historyInvalidator interface {
	DeleteHistory(ctx context.Context, conversationID uint) error
}

type MessagePersistWorker struct {
	conn      *amqp.Connection
	messages  messageCreator
	histories historyInvalidator
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMessagePersistWorker consumes queueName and lands each delivery as
// a message row. histories may be nil when no transcript cache is in
// front of the store.
func NewMessagePersistWorker(conn *amqp.Connection, messages messageCreator, histories historyInvalidator, queueName string) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		messages:  messages,
		histories: histories,
		queueName: queueName,
	}
}

// Start opens a dedicated channel and consumes until ctx is cancelled
// or Close is called. Calling Start twice is a no-op.
func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.drain(workerCtx, deliveries)
	}()

	return nil
}

func (w *MessagePersistWorker) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.persist(ctx, d.Body); err != nil {
				log.Printf("persist queued message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// persist decodes one queued payload, writes it, and evicts the cached
// transcript of its conversation. A cache eviction failure is logged
// but does not fail the delivery: the dirty marker set by the producer
// already fences readers until the marker expires.
func (w *MessagePersistWorker) persist(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode queued message: %w", err)
	}
	if msg.ConversationID == 0 || msg.Role == "" {
		return fmt.Errorf("queued message missing conversation or role")
	}

	if err := w.messages.Create(&msg); err != nil {
		return fmt.Errorf("store message for conversation %d: %w", msg.ConversationID, err)
	}

	if w.histories != nil {
		if err := w.histories.DeleteHistory(ctx, msg.ConversationID); err != nil {
			log.Printf("evict cached history for conversation %d failed: %v", msg.ConversationID, err)
		}
	}
	return nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
