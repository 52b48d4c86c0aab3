// Package events publishes extraction progress to Redis pub/sub so other
// processes (dashboards, notifiers) can follow a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
)

// Redis channels
const (
	ChannelStep    = "judgeroute.step"
	ChannelState   = "judgeroute.state"
	ChannelWarning = "judgeroute.warning"
)

// DefaultPublishTimeout bounds each PUBLISH so a slow Redis cannot stall
// the extraction loop.
const DefaultPublishTimeout = 2 * time.Second

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType, runID string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Source:    "judgeroute",
		Version:   "1.0",
	}
}

// StepEvent is published after every processed record.
type StepEvent struct {
	BaseEvent

	Index          int     `json:"index"`
	Total          int     `json:"total"`
	RecordID       string  `json:"record_id"`
	Outcome        string  `json:"outcome"`
	Judge          string  `json:"judge,omitempty"`
	Detail         string  `json:"detail,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Reused         bool    `json:"reused,omitempty"`
}

// StateEvent is published on lifecycle transitions.
type StateEvent struct {
	BaseEvent

	Old string `json:"old"`
	New string `json:"new"`
}

// WarningEvent is published when the run needs operator attention.
type WarningEvent struct {
	BaseEvent

	Kind        string  `json:"kind"`
	Message     string  `json:"message"`
	BlockedRate float64 `json:"blocked_rate"`
	Consecutive int     `json:"consecutive"`
}

// redisPublisher is the part of the redis client the publisher needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes orchestrator events to Redis. It implements
// batch.Observer; publish failures are logged and never reach the run.
type Publisher struct {
	client  redisPublisher
	logger  logging.Logger
	timeout time.Duration
}

var _ batch.Observer = (*Publisher)(nil)

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	return newPublisher(client, logger)
}

func newPublisher(client redisPublisher, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client:  client,
		logger:  logger.With(logging.F("component", "event_publisher")),
		timeout: DefaultPublishTimeout,
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(ctx context.Context, cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, logger), nil
}

// OnStep implements batch.Observer.
func (p *Publisher) OnStep(e batch.StepEvent) {
	event := StepEvent{
		BaseEvent:      NewBaseEvent("run.step", e.RunID),
		Index:          e.Index,
		Total:          e.Total,
		RecordID:       e.RecordID,
		Outcome:        e.Outcome.Kind.String(),
		Judge:          e.Outcome.Name,
		Detail:         e.Outcome.Detail,
		ElapsedSeconds: e.Elapsed.Seconds(),
		Reused:         e.Reused,
	}
	_ = p.publish(ChannelStep, event)
}

// OnStateChange implements batch.Observer.
func (p *Publisher) OnStateChange(e batch.StateEvent) {
	event := StateEvent{
		BaseEvent: NewBaseEvent("run.state", e.RunID),
		Old:       e.Old.String(),
		New:       e.New.String(),
	}
	_ = p.publish(ChannelState, event)
}

// OnWarning implements batch.Observer.
func (p *Publisher) OnWarning(e batch.WarningEvent) {
	event := WarningEvent{
		BaseEvent:   NewBaseEvent("run.warning", e.RunID),
		Kind:        e.Kind,
		Message:     e.Message,
		BlockedRate: e.BlockedRate,
		Consecutive: e.Consecutive,
	}
	_ = p.publish(ChannelWarning, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
