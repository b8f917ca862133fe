package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finboard/internal/core"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Handler processes consumed messages. A returned error requeues the
// delivery.
type Handler interface {
	HandlePreferenceBatch(ctx context.Context, msg *PreferenceBatchMessage) error
	HandleStatementImported(ctx context.Context, msg *StatementImportedMessage) error
}

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failMu       sync.Mutex
	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn, c.channel = conn, channel
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Direct exchange: the routing key is the queue name.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// channelLocked returns a live channel, reconnecting when the previous
// connection dropped.
func (c *Client) channelLocked() (*amqp091.Channel, error) {
	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	slog.Info("Reconnected to AMQP broker", "exchange", c.exchangeName, "queue", c.queueName)
	return c.channel, nil
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.failMu.Lock()
		elapsed := time.Since(c.lastFailure)
		c.failMu.Unlock()
		if elapsed > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failMu.Lock()
	c.lastFailure = time.Now()
	c.failMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff doubles from one second, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) publish(ctx context.Context, msgType string, payload any) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", msgType, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	err = c.publishLocked(ctx, msgType, body)
	c.mu.Unlock()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published message",
		"type", msgType,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publishLocked(ctx context.Context, msgType string, body []byte) error {
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Type:         msgType,
		Body:         body,
	})
	if err != nil && isConnectionError(err) {
		c.closeLocked()
	}
	return err
}

// PublishPreferences publishes a preference batch for the worker to persist.
func (c *Client) PublishPreferences(ctx context.Context, prefs []core.CategoryPreference) error {
	return c.publish(ctx, TypePreferenceBatch, NewPreferenceBatchMessage(prefs))
}

// PublishStatementImported announces a finished import.
func (c *Client) PublishStatementImported(ctx context.Context, meta core.StatementMeta, res core.ImportResult) error {
	return c.publish(ctx, TypeStatementImported, NewStatementImportedMessage(meta, res))
}

// ConsumeMessages dispatches deliveries to h until ctx is done. Dropped
// connections are re-established with exponential backoff.
func (c *Client) ConsumeMessages(ctx context.Context, h Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, h, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer disconnected, retrying", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, h Handler, connected func()) error {
	c.mu.Lock()
	ch, err := c.channelLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()
	slog.InfoContext(ctx, "Started consuming messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume: %w", amqp091.ErrClosed)
			}
			c.dispatch(ctx, h, delivery)
		}
	}
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) dispatch(ctx context.Context, h Handler, d amqp091.Delivery) {
	handle(ctx, h, d.Type, d.Body, &d)
}

func handle(ctx context.Context, h Handler, msgType string, body []byte, ack acker) {
	var err error
	switch msgType {
	case TypePreferenceBatch:
		msg, derr := PreferenceBatchMessageFromJSON(body)
		if derr != nil {
			reject(ctx, msgType, derr, ack)
			return
		}
		err = h.HandlePreferenceBatch(ctx, msg)
	case TypeStatementImported:
		msg, derr := StatementImportedMessageFromJSON(body)
		if derr != nil {
			reject(ctx, msgType, derr, ack)
			return
		}
		err = h.HandleStatementImported(ctx, msg)
	default:
		reject(ctx, msgType, errors.New("unknown message type"), ack)
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message", "type", msgType, "error", err)
		ack.Nack(false, true) // requeue
		return
	}
	ack.Ack(false)
	slog.InfoContext(ctx, "Successfully processed message", "type", msgType)
}

// reject drops a delivery that can never be handled.
func reject(ctx context.Context, msgType string, err error, ack acker) {
	slog.ErrorContext(ctx, "Rejecting message", "type", msgType, "error", err)
	ack.Nack(false, false)
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
