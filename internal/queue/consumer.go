package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
	"github.com/felixgeelhaar/skillforge/internal/judge"
)

// JobHandler grades one submission job
type JobHandler func(ctx context.Context, job *SubmissionJob) (*GradingOutcome, error)

// Submitter grades and records a submission. *grading.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req grading.SubmissionRequest) (*grading.Outcome, error)
}

// GradingHandler adapts a Submitter to a JobHandler
func GradingHandler(s Submitter) JobHandler {
	return func(ctx context.Context, job *SubmissionJob) (*GradingOutcome, error) {
		out, err := s.Submit(ctx, job.Request)
		if err != nil {
			return nil, err
		}
		return &GradingOutcome{
			SubmissionID: out.Result.SubmissionID,
			UserID:       job.Request.UserID,
			Status:       StatusCompleted,
			Result:       out.Result,
			Progress:     out.Progress,
			Applied:      out.Applied,
		}, nil
	}
}

type outcomePublisher interface {
	PublishOutcome(ctx context.Context, out *GradingOutcome) error
}

// Consumer consumes submission jobs from the queue
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	results    outcomePublisher
	workers    int
	prefetch   int
	timeout    time.Duration
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int
	Prefetch int
	// JobTimeout applies when a job carries no timeout of its own
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:    3,
		Prefetch:   1,
		JobTimeout: 2 * time.Minute,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		conn:     conn,
		handler:  handler,
		results:  NewProducer(conn),
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.JobTimeout,
		logger:   cfg.Logger,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		SubmissionQueueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting submission consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	c.logger.Debug("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// disposition is what happens to a delivery after handling
type disposition int

const (
	ack     disposition = iota // done, outcome published
	requeue                    // transient failure, first delivery
	drop                       // transient failure on redelivery, dead-lettered
)

// permanent reports errors that will not change on redelivery
func permanent(err error) bool {
	return errors.Is(err, judge.ErrUnsupportedLanguage) ||
		errors.Is(err, domain.ErrEmptyCode) ||
		errors.Is(err, domain.ErrNoTestCases)
}

func decide(err error, redelivered bool) disposition {
	switch {
	case err == nil, permanent(err):
		return ack
	case redelivered:
		return drop
	default:
		return requeue
	}
}

func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var job SubmissionJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("failed to unmarshal job", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}

	log := c.logger.With(
		"worker_id", workerID,
		"job_id", job.ID,
		"submission_id", job.Request.SubmissionID,
		"redelivered", msg.Redelivered,
	)
	log.Info("processing submission job", "user_id", job.Request.UserID, "question_id", job.Request.QuestionID)

	timeout := time.Duration(job.Timeout) * time.Second
	if timeout <= 0 {
		timeout = c.timeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.handler(jobCtx, &job)
	duration := time.Since(start)

	d := decide(err, msg.Redelivered)
	if d == requeue {
		log.Warn("job failed, requeueing once", "error", err, "duration", duration)
		if nerr := msg.Nack(false, true); nerr != nil {
			log.Error("failed to nack message", "error", nerr)
		}
		return
	}

	if err != nil {
		out = &GradingOutcome{
			SubmissionID: job.Request.SubmissionID,
			UserID:       job.Request.UserID,
			Status:       StatusFailed,
			Error:        err.Error(),
		}
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			out.Status = StatusTimeout
		}
		log.Error("job failed", "error", err, "status", out.Status, "duration", duration)
	} else {
		log.Info("job completed", "verdict", out.Result.Verdict, "applied", out.Applied, "duration", duration)
	}
	out.JobID = job.ID
	out.Duration = duration
	out.CompletedAt = time.Now()

	if perr := c.results.PublishOutcome(ctx, out); perr != nil {
		log.Error("failed to publish outcome", "error", perr)
	}

	if d == drop {
		if nerr := msg.Nack(false, false); nerr != nil {
			log.Error("failed to nack message", "error", nerr)
		}
		return
	}
	if aerr := msg.Ack(false); aerr != nil {
		log.Error("failed to ack message", "error", aerr)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}

// OutcomeHandler handles the outcome of a specific job
type OutcomeHandler func(out *GradingOutcome)

// ResultConsumer consumes grading outcomes and dispatches them to waiters
type ResultConsumer struct {
	conn       *Connection
	handlers   map[string]OutcomeHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewResultConsumer creates a result consumer
func NewResultConsumer(conn *Connection) *ResultConsumer {
	return &ResultConsumer{
		conn:     conn,
		handlers: make(map[string]OutcomeHandler),
		logger:   conn.logger,
	}
}

// Subscribe registers a handler for the outcome of a job
func (rc *ResultConsumer) Subscribe(jobID string, handler OutcomeHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[jobID] = handler
}

// Unsubscribe removes a handler
func (rc *ResultConsumer) Unsubscribe(jobID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, jobID)
}

// Start begins consuming outcomes
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ctx, rc.cancelFunc = context.WithCancel(ctx)

	msgs, err := rc.conn.Channel().Consume(
		ResultQueueName,
		"",
		true, // auto-ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start result consumer: %w", err)
	}

	rc.wg.Add(1)
	go rc.consume(ctx, msgs)

	return nil
}

func (rc *ResultConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			rc.dispatch(msg.Body)
		}
	}
}

func (rc *ResultConsumer) dispatch(body []byte) {
	var out GradingOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		rc.logger.Error("failed to unmarshal outcome", "error", err)
		return
	}

	rc.handlersMu.RLock()
	handler, ok := rc.handlers[out.JobID.String()]
	rc.handlersMu.RUnlock()

	if ok {
		handler(&out)
	}
}

// Stop stops the result consumer
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
