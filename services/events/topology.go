package events

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeMailpulseDirect = "mailpulse-direct"
	ExchangeNotifications   = "notifications"
	ExchangeDeadLetter      = "dead-letter"

	QueueGmailNotifications = "gmail-notifications"
	DLQGmailNotifications   = QueueGmailNotifications + "-dlq"

	RoutingKeyDeadLetter        = "dead-letter"
	RoutingKeyGmailNotification = "mailpulse-gmail-notification"

	// a queued notification older than a Gmail watch is useless
	DefaultMessageTTL          = 24 * time.Hour
	DefaultMaxRetries          = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

type exchange struct {
	name string
	kind string
}

type queueBinding struct {
	queue      string
	dlq        string
	exchange   string
	routingKey string
}

var exchanges = []exchange{
	{ExchangeDeadLetter, amqp091.ExchangeDirect},
	{ExchangeNotifications, amqp091.ExchangeFanout},
	{ExchangeMailpulseDirect, amqp091.ExchangeDirect},
}

var queues = []queueBinding{
	{QueueGmailNotifications, DLQGmailNotifications, ExchangeMailpulseDirect, RoutingKeyGmailNotification},
}

// routingKeyFor drops the key for fanout exchanges, the broker ignores it anyway.
func routingKeyFor(exchangeName, routingKey string) string {
	for _, e := range exchanges {
		if e.name == exchangeName && e.kind == amqp091.ExchangeFanout {
			return ""
		}
	}
	return routingKey
}

func queueArgs(ttl time.Duration) amqp091.Table {
	return amqp091.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             ttl.Milliseconds(),
	}
}

func declareTopology(channel *amqp091.Channel, ttl time.Duration) error {
	for _, e := range exchanges {
		if err := channel.ExchangeDeclare(e.name, e.kind, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to declare exchange %s", e.name)
		}
	}

	for _, q := range queues {
		if _, err := channel.QueueDeclare(q.dlq, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to declare DLQ %s", q.dlq)
		}
		if err := channel.QueueBind(q.dlq, RoutingKeyDeadLetter, ExchangeDeadLetter, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to bind DLQ %s to exchange", q.dlq)
		}
		if _, err := channel.QueueDeclare(q.queue, true, false, false, false, queueArgs(ttl)); err != nil {
			return errors.Wrapf(err, "Failed to declare queue %s", q.queue)
		}
		if err := channel.QueueBind(q.queue, q.routingKey, q.exchange, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to bind queue %s to exchange %s", q.queue, q.exchange)
		}
	}
	return nil
}
