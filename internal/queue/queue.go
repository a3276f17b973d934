// Package queue moves grading work through RabbitMQ. Submission jobs are
// published to one durable queue, graded by a worker pool and the outcomes
// published to a results queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
)

// Queue names
const (
	SubmissionQueueName = "skillforge.submissions"
	ResultQueueName     = "skillforge.results"
)

// Outcome statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// SubmissionJob is one submission waiting to be graded
type SubmissionJob struct {
	ID        uuid.UUID                 `json:"id"`
	Request   grading.SubmissionRequest `json:"request"`
	Timeout   int                       `json:"timeout,omitempty"` // seconds
	CreatedAt time.Time                 `json:"created_at"`
}

// GradingOutcome is the published result of a submission job
type GradingOutcome struct {
	JobID        uuid.UUID               `json:"job_id"`
	SubmissionID uuid.UUID               `json:"submission_id"`
	UserID       string                  `json:"user_id"`
	Status       string                  `json:"status"`
	Result       *domain.GradingResult   `json:"result,omitempty"`
	Progress     *domain.ProgressCounter `json:"progress,omitempty"`
	Applied      bool                    `json:"applied"`
	Error        string                  `json:"error,omitempty"`
	Duration     time.Duration           `json:"duration"`
	CompletedAt  time.Time               `json:"completed_at"`
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
	logger     *slog.Logger
}

// NewConnection creates a new RabbitMQ connection and declares the queues
func NewConnection(url string) (*Connection, error) {
	return NewConnectionWithLogger(url, slog.Default())
}

// NewConnectionWithLogger is NewConnection with an explicit logger
func NewConnectionWithLogger(url string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:    url,
		logger: logger,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect(c.conn)

	c.logger.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func (c *Connection) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		SubmissionQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(600000), // 10 minutes
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare submission queue: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		ResultQueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl": int32(300000), // 5 minutes
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare results queue: %w", err)
	}

	return nil
}

// handleReconnect waits for an abnormal close and redials with backoff
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	c.logger.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		time.Sleep(reconnectBackoff(i))

		if err := c.connect(); err != nil {
			c.logger.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	c.logger.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// reconnectBackoff doubles from one second and caps at thirty
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	backoff := time.Duration(1<<attempt) * time.Second
	return min(backoff, 30*time.Second)
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a persistent JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch := c.Channel()

	return ch.PublishWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL hides the password of an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Redacted()
}
