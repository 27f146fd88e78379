// Package events publishes order lifecycle events to an AMQP topic exchange
// so downstream consumers (fulfilment, notifications) can react without
// coupling to the checkout flow.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/order"
)

// Event types carried on the exchange.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderPaid          = "order.paid"
	TypeOrderRemoved       = "order.removed"
	TypeOrderStatusChanged = "order.status_changed"
)

// Event is the wire format for order lifecycle notifications.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher sends order events to a durable topic exchange. It satisfies
// order.Notifier: publishing is best-effort and never fails the caller.
type Publisher struct {
	channel  *amqp.Channel
	conn     *amqp.Connection
	exchange string
}

var _ order.Notifier = (*Publisher)(nil)

// Connect dials the broker, declares the exchange, and returns a ready
// Publisher. Callers own Close.
func Connect(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	return &Publisher{channel: ch, conn: conn, exchange: exchange}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) {
	p.publish(ctx, Event{
		Type:    TypeOrderPlaced,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
		Amount:  o.Amount,
	})
}

func (p *Publisher) OrderPaid(ctx context.Context, o *order.Order) {
	p.publish(ctx, Event{
		Type:    TypeOrderPaid,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
		Amount:  o.Amount,
	})
}

func (p *Publisher) OrderRemoved(ctx context.Context, orderID string) {
	p.publish(ctx, Event{
		Type:    TypeOrderRemoved,
		OrderID: orderID,
	})
}

func (p *Publisher) OrderStatusChanged(ctx context.Context, o *order.Order) {
	p.publish(ctx, Event{
		Type:    TypeOrderStatusChanged,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
	})
}

// publish sends one event. Failures are logged, never propagated: checkout
// must not depend on broker availability.
func (p *Publisher) publish(ctx context.Context, ev Event) {
	ev.ID = uuid.New().String()
	ev.Timestamp = time.Now()

	body, err := json.Marshal(ev)
	if err != nil {
		zctx.From(ctx).Error("marshal event", zap.Error(err))
		return
	}

	err = p.channel.Publish(
		p.exchange,
		ev.Type, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.Timestamp,
		},
	)
	if err != nil {
		zctx.From(ctx).Error("publish event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}
