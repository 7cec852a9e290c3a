package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

const asynqTaskType = "sicknote:job"

// AsynqBackend carries job ids through Redis with hibiken/asynq. Scheduled
// retries use ProcessAt; asynq itself only retries failed deliveries.
type AsynqBackend struct {
	client    *asynq.Client
	server    *asynq.Server
	queueName string
	logger    arbor.ILogger
}

var _ Backend = (*AsynqBackend)(nil)

// NewAsynqBackend creates a Redis-backed queue
func NewAsynqBackend(config common.RedisConfig, queueName string, concurrency int, logger arbor.ILogger) *AsynqBackend {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:              concurrency,
		Queues:                   map[string]int{queueName: 1},
		DelayedTaskCheckInterval: time.Second,
		ShutdownTimeout:          10 * time.Second,
		Logger:                   &asynqLogger{logger: logger},
		LogLevel:                 asynq.WarnLevel,
	})

	return &AsynqBackend{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		queueName: queueName,
		logger:    logger,
	}
}

func (b *AsynqBackend) Name() string {
	return "redis"
}

// Enqueue schedules msg for processing at the given time
func (b *AsynqBackend) Enqueue(ctx context.Context, msg Message, at time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	task := asynq.NewTask(asynqTaskType, payload)
	info, err := b.client.EnqueueContext(ctx, task,
		asynq.Queue(b.queueName),
		asynq.ProcessAt(at),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	b.logger.Debug().
		Str("task_id", info.ID).
		Str("job_id", msg.JobID).
		Int("attempt", msg.Attempt).
		Str("state", info.State.String()).
		Msg("Task enqueued")
	return nil
}

// Start registers the delivery handler and starts processing
func (b *AsynqBackend) Start(deliver DeliverFunc) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(asynqTaskType, func(ctx context.Context, t *asynq.Task) error {
		var msg Message
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
		}
		return deliver(ctx, msg)
	})

	if err := b.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	b.logger.Info().Str("queue", b.queueName).Msg("Asynq queue server started")
	return nil
}

// Stop waits for active tasks and closes the Redis connections
func (b *AsynqBackend) Stop() error {
	b.server.Shutdown()
	return b.client.Close()
}

// asynqLogger routes asynq logs to arbor
type asynqLogger struct {
	logger arbor.ILogger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal().Str("component", "asynq").Msg(fmt.Sprint(args...))
}
