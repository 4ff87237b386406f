package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"calsync/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// NewRabbitMQ dials the broker and declares a durable direct exchange with
// one durable queue bound to it.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// SyncRunMessage announces the terminal state of one sync run.
type SyncRunMessage struct {
	Event     string         `json:"event"` // "sync_run.completed" or "sync_run.failed"
	Calendar  CalendarRef    `json:"calendar"`
	Run       SyncRunSummary `json:"run"`
	Timestamp time.Time      `json:"timestamp"`
}

type CalendarRef struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	ExternalID string `json:"external_id"`
}

type SyncRunSummary struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	TriggeredBy   string          `json:"triggered_by"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	PeopleFound   int             `json:"people_found"`
	PeopleCreated int             `json:"people_created"`
	PeopleUpdated int             `json:"people_updated"`
	EventsFound   int             `json:"events_found"`
	EventsCreated int             `json:"events_created"`
	EventsUpdated int             `json:"events_updated"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	ErrorDetails  json.RawMessage `json:"error_details,omitempty"`
}

func NewSyncRunMessage(cal *domain.Calendar, run *domain.SyncRun, now time.Time) SyncRunMessage {
	return SyncRunMessage{
		Event: "sync_run." + string(run.Status),
		Calendar: CalendarRef{
			ID:         cal.ID,
			Slug:       cal.Slug,
			ExternalID: cal.ExternalID,
		},
		Run: SyncRunSummary{
			ID:            run.ID,
			Status:        string(run.Status),
			TriggeredBy:   string(run.TriggeredBy),
			StartedAt:     run.StartedAt,
			CompletedAt:   run.CompletedAt,
			DurationMs:    run.DurationMs,
			PeopleFound:   run.PeopleFound,
			PeopleCreated: run.PeopleCreated,
			PeopleUpdated: run.PeopleUpdated,
			EventsFound:   run.EventsFound,
			EventsCreated: run.EventsCreated,
			EventsUpdated: run.EventsUpdated,
			ErrorMessage:  run.ErrorMessage,
			ErrorDetails:  run.ErrorDetails,
		},
		Timestamp: now.UTC(),
	}
}

func (r *RabbitMQ) PublishSyncRun(ctx context.Context, cal *domain.Calendar, run *domain.SyncRun) error {
	msg := NewSyncRunMessage(cal, run, time.Now())

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    run.ID,
			Type:         msg.Event,
			Headers: amqp.Table{
				"calendar": cal.Slug,
				"status":   string(run.Status),
			},
			Body:      body,
			Timestamp: msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published sync run",
		"sync_run_id", run.ID,
		"calendar", cal.Slug,
		"event", msg.Event,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
