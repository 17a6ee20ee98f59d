// Package events publishes and decodes link-open events on RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/mail-deeplink/internal"
)

// Channel is the part of *amqp091.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type Publisher struct {
	ch    Channel
	queue string
}

func NewPublisher(ch Channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

func (p *Publisher) PublishLinkOpen(ctx context.Context, event internal.LinkOpenEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal link event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish link event: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable queue shared by the service and worker.
func DeclareQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare queue %q: %w", name, err)
	}
	return q, nil
}

func Decode(body []byte) (internal.LinkOpenEvent, error) {
	var event internal.LinkOpenEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return internal.LinkOpenEvent{}, fmt.Errorf("decode link event: %w", err)
	}
	return event, nil
}
