package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface is the queue surface used by producers and consumers.
type ClientInterface interface {
	// Push publishes data and waits for the broker confirmation.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes without waiting for a confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume returns a delivery channel; every delivery must be acked or nacked.
	Consume() (<-chan amqp.Delivery, error)

	// Ready reports whether the client is connected.
	Ready() bool

	// Close shuts down the channel and connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)
