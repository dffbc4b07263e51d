package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"recorder-agent/config"
)

type Publisher[T any] interface {
	Publish(ctx context.Context, routingKey string, msg T) error
	Close() error
}

type publisher[T any] struct {
	ch       *amqp.Channel
	exchange string
}

// NewPublisher opens a channel and declares the exchange once; Publish then
// reuses the channel for every message.
func NewPublisher[T any](conn *amqp.Connection, cfg *config.RabbitMQ, exchange string) (Publisher[T], error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, cfg.Kind, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}

	return &publisher[T]{ch: ch, exchange: exchange}, nil
}

func (p *publisher[T]) Publish(ctx context.Context, routingKey string, msg T) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish message")
		return err
	}
	return nil
}

func (p *publisher[T]) Close() error {
	return p.ch.Close()
}
