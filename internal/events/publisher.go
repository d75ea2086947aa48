// Package events publishes report lifecycle events to a message broker.
// Publishing is best effort: a broker outage never fails the request that
// triggered the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/models"
	"github.com/nammaooru/civicreport/internal/observability"
)

// Event types emitted on the report queue.
const (
	TypeReportCreated      = "report.created"
	TypeReportTransitioned = "report.transitioned"
)

// ReportEvent is the wire payload for lifecycle events.
type ReportEvent struct {
	Type       string    `json:"type"`
	ReportID   string    `json:"reportId"`
	UserID     string    `json:"userId"`
	Category   string    `json:"category"`
	Status     string    `json:"status"`
	Priority   *string   `json:"priority,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher sends report events somewhere. Nil-safe helpers in the service
// layer mean callers may hold a nil Publisher when eventing is disabled.
type Publisher interface {
	Publish(ctx context.Context, ev ReportEvent)
	Close() error
}

// AMQPPublisher publishes events to a RabbitMQ queue.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewAMQPPublisher connects to the broker and declares the queue.
func NewAMQPPublisher(url, queue string, logger *zap.Logger, metrics observability.MetricsRegistry) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	logger.Info("Connected to message broker", zap.String("queue", queue))
	return &AMQPPublisher{conn: conn, channel: ch, queue: queue, logger: logger, metrics: metrics}, nil
}

// Publish sends one event. Failures are logged and counted, never returned.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ReportEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to encode report event", zap.Error(err))
		p.metrics.IncrementEventPublishErrors()
		return
	}
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.logger.Error("Failed to publish report event",
			zap.String("type", ev.Type),
			zap.String("report_id", ev.ReportID),
			zap.Error(err))
		p.metrics.IncrementEventPublishErrors()
	}
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NewEvent builds a ReportEvent from a report snapshot.
func NewEvent(eventType string, r *models.Report, now time.Time) ReportEvent {
	ev := ReportEvent{
		Type:       eventType,
		ReportID:   r.ID.String(),
		UserID:     r.UserID.String(),
		Category:   r.Category,
		Status:     string(r.Status),
		OccurredAt: now,
	}
	if r.Priority != nil {
		p := string(*r.Priority)
		ev.Priority = &p
	}
	return ev
}
