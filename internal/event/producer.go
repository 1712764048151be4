package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/authcore/internal/domain"
	pkgkafka "github.com/utafrali/authcore/pkg/kafka"
	"github.com/utafrali/authcore/pkg/logger"
)

// Revocation reasons carried by session.revoked.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonAdmin          = "admin"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonDeleted        = "identity_deleted"
)

// IdentityRegisteredData is the payload for identity.registered.
type IdentityRegisteredData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleID    string `json:"role_id"`
	Provider  string `json:"provider,omitempty"`
}

// SessionCreatedData is the payload for session.created.
type SessionCreatedData struct {
	IdentityID string `json:"identity_id"`
	Source     string `json:"source"`
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
}

// SessionRefreshedData is the payload for session.refreshed.
type SessionRefreshedData struct {
	IdentityID string `json:"identity_id"`
	IP         string `json:"ip"`
}

// SessionRevokedData is the payload for session.revoked.
type SessionRevokedData struct {
	IdentityID string `json:"identity_id"`
	Reason     string `json:"reason"`
	Count      int64  `json:"count"`
}

// Producer publishes authcore events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishIdentityRegistered publishes an identity.registered event.
func (p *Producer) PublishIdentityRegistered(ctx context.Context, identity *domain.Identity) error {
	return p.publish(ctx, TypeIdentityRegistered, func() (*Envelope, error) {
		return NewIdentityRegistered(identity)
	})
}

// PublishSessionCreated publishes a session.created event.
func (p *Producer) PublishSessionCreated(ctx context.Context, identityID, source string, fp domain.Fingerprint) error {
	return p.publish(ctx, TypeSessionCreated, func() (*Envelope, error) {
		return NewSessionCreated(identityID, source, fp)
	})
}

// PublishSessionRefreshed publishes a session.refreshed event.
func (p *Producer) PublishSessionRefreshed(ctx context.Context, identityID string, fp domain.Fingerprint) error {
	return p.publish(ctx, TypeSessionRefreshed, func() (*Envelope, error) {
		return NewSessionRefreshed(identityID, fp)
	})
}

// PublishSessionRevoked publishes a session.revoked event.
func (p *Producer) PublishSessionRevoked(ctx context.Context, identityID, reason string, count int64) error {
	return p.publish(ctx, TypeSessionRevoked, func() (*Envelope, error) {
		return NewSessionRevoked(identityID, reason, count)
	})
}

func (p *Producer) publish(ctx context.Context, t Type, build func() (*Envelope, error)) error {
	env, err := build()
	if err != nil {
		return fmt.Errorf("create %s event: %w", t, err)
	}
	env.CorrelationID = logger.CorrelationIDFromContext(ctx)

	rec, err := env.Record()
	if err != nil {
		return err
	}
	if err := p.kafka.Publish(ctx, rec); err != nil {
		return fmt.Errorf("publish %s event: %w", t, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("event_type", string(t)),
		slog.String("event_id", env.ID),
		slog.String("identity_id", env.IdentityID),
	)

	return nil
}
