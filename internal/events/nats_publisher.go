package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// DefaultSubject is the subject post-created events are published on when none is configured.
const DefaultSubject = "posts.created"

var errMissingConnection = errors.New("events: nats connection required")

// MessagePublisher is the subset of *nats.Conn used for publishing.
type MessagePublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// PostCreatedEvent is the message body consumers of the subject receive.
type PostCreatedEvent struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Handle    string    `json:"handle"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NATSPublisherConfig describes the dependencies of NATSPublisher.
type NATSPublisherConfig struct {
	Connection MessagePublisher
	Subject    string
	Logger     *zap.Logger
}

// NATSPublisher announces created posts on a NATS subject.
type NATSPublisher struct {
	conn    MessagePublisher
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher constructs a NATSPublisher.
func NewNATSPublisher(cfg NATSPublisherConfig) (*NATSPublisher, error) {
	if cfg.Connection == nil {
		return nil, errMissingConnection
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = DefaultSubject
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: cfg.Connection, subject: subject, logger: logger}, nil
}

// PublishPostCreated encodes post and publishes it with the trace context of ctx in the headers.
func (p *NATSPublisher) PublishPostCreated(ctx context.Context, post posts.Post) error {
	event := PostCreatedEvent{
		ID:        post.ID,
		AuthorID:  post.AuthorID,
		Handle:    post.Author.Handle,
		Text:      post.Text,
		CreatedAt: post.CreatedAt.UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal post created: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", p.subject, err)
	}
	p.logger.Debug("post created event published",
		zap.String("subject", p.subject),
		zap.String("post_id", post.ID))
	return nil
}
