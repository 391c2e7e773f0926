package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"saldo/internal/core"
	applog "saldo/internal/log"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	exportQueue  string
	driftQueue   string
}

// ExportHandler processes a statement-export message.
type ExportHandler func(ctx context.Context, msg *TransactionRecordedMessage) error

// DriftHandler processes a balance-drift message.
type DriftHandler func(ctx context.Context, msg *BalanceDriftMessage) error

func NewClient(url, exchangeName, exportQueue, driftQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		exportQueue:  exportQueue,
		driftQueue:   driftQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.exportQueue, c.driftQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key matches the queue name on the direct exchange.
		err = c.channel.QueueBind(queue, queue, c.exchangeName, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishTransactionRecorded publishes a statement-export message.
func (c *Client) PublishTransactionRecorded(ctx context.Context, id int64, userID core.UserID) error {
	msg := NewTransactionRecordedMessage(id, userID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.exportQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published transaction recorded message",
		applog.FieldTransactionID, id,
		applog.FieldUserID, userID,
		"exchange", c.exchangeName,
		"queue", c.exportQueue)
	return nil
}

// PublishBalanceDrift publishes a drift alert for the reconcile worker.
func (c *Client) PublishBalanceDrift(ctx context.Context, accountID int64, userID core.UserID) error {
	msg := NewBalanceDriftMessage(accountID, userID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.driftQueue, body); err != nil {
		return err
	}

	slog.WarnContext(ctx, "Published balance drift alert",
		applog.FieldAccountID, accountID,
		applog.FieldUserID, userID,
		"exchange", c.exchangeName,
		"queue", c.driftQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeMessages consumes both queues until the context is canceled.
// Handler errors nack with requeue; undecodable bodies are dropped.
func (c *Client) ConsumeMessages(ctx context.Context, exportHandler ExportHandler, driftHandler DriftHandler) error {
	exports, err := c.channel.Consume(
		c.exportQueue, // queue
		"",            // consumer
		false,         // auto-ack (we want manual ack)
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.exportQueue, err)
	}

	drifts, err := c.channel.Consume(c.driftQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.driftQueue, err)
	}

	slog.InfoContext(ctx, "Started consuming ledger messages",
		"export_queue", c.exportQueue,
		"drift_queue", c.driftQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()

		case delivery, ok := <-exports:
			if !ok {
				return fmt.Errorf("export message channel closed")
			}
			c.handleExport(ctx, delivery, exportHandler)

		case delivery, ok := <-drifts:
			if !ok {
				return fmt.Errorf("drift message channel closed")
			}
			c.handleDrift(ctx, delivery, driftHandler)
		}
	}
}

func (c *Client) handleExport(ctx context.Context, delivery amqp091.Delivery, handler ExportHandler) {
	msg, err := TransactionRecordedMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal export message", applog.FieldError, err)
		delivery.Nack(false, false) // reject and don't requeue
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle export message",
			applog.FieldError, err,
			applog.FieldTransactionID, msg.ID,
			applog.FieldUserID, msg.UserID)
		delivery.Nack(false, true) // reject and requeue
		return
	}

	delivery.Ack(false)
	slog.InfoContext(ctx, "Processed export message",
		applog.FieldTransactionID, msg.ID,
		applog.FieldUserID, msg.UserID)
}

func (c *Client) handleDrift(ctx context.Context, delivery amqp091.Delivery, handler DriftHandler) {
	msg, err := BalanceDriftMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal drift message", applog.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle drift message",
			applog.FieldError, err,
			applog.FieldAccountID, msg.AccountID,
			applog.FieldUserID, msg.UserID)
		delivery.Nack(false, true)
		return
	}

	delivery.Ack(false)
	slog.InfoContext(ctx, "Processed drift message",
		applog.FieldAccountID, msg.AccountID,
		applog.FieldUserID, msg.UserID)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
