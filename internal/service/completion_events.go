package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/middleware"
)

// CompletionEvent is broadcast after a cycle commits.
type CompletionEvent struct {
	CycleID         uint      `json:"cycle_id"`
	AssignmentID    uint      `json:"assignment_id"`
	UserID          uint      `json:"user_id"`
	CourseVersionID uint      `json:"course_version_id"`
	CourseCode      string    `json:"course_code"`
	Version         string    `json:"version"`
	CertificateID   string    `json:"certificate_id"`
	CompletedAt     time.Time `json:"completed_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Score           *int      `json:"score,omitempty"`
}

// CompletionPublisher fans completion events out to other systems.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, event CompletionEvent) error
}

type natsCompletionPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewCompletionPublisher publishes on the NATS subject. A nil connection yields a
// publisher that only logs.
func NewCompletionPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) CompletionPublisher {
	return &natsCompletionPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "completion_publisher").Logger(),
	}
}

func (p *natsCompletionPublisher) PublishCompletion(ctx context.Context, event CompletionEvent) error {
	if p.conn == nil || p.subject == "" {
		p.logger.Debug().Str("certificate_id", event.CertificateID).Msg("event bus disabled; completion not published")
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		msg.Header.Set(middleware.HeaderCorrelationID, correlationID)
	}

	return p.conn.PublishMsg(msg)
}
