// Package events publishes order lifecycle events to RabbitMQ. Publishing is
// optional: a nil *Publisher is a no-op, and events are emitted only after the
// database transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TypeOrderPlaced     = "order.placed"
	TypeOrderStatus     = "order.status_changed"
	TypeOrderItemStatus = "order_item.status_changed"
	TypeStockAdjusted   = "sweet.stock_adjusted"
)

type OrderPlaced struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	TotalAmount string `json:"total_amount"`
	ItemCount   int    `json:"item_count"`
}

type StatusChanged struct {
	OrderID string `json:"order_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	Status  string `json:"status"`
}

type StockAdjusted struct {
	SweetID       string `json:"sweet_id"`
	StockQuantity int    `json:"stock_quantity"`
}

type envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish emits one event with the type as routing key. Failures are logged
// and swallowed: the order is already committed and the API response must not
// depend on the broker.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	if p == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] marshal %s: %v", eventType, err)
		return
	}
	body, err := json.Marshal(envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	})
	if err != nil {
		log.Printf("[events] marshal envelope %s: %v", eventType, err)
		return
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		eventType, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
		})
	if err != nil {
		log.Printf("[events] publish %s: %v", eventType, err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
