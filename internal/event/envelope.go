package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authcore/internal/domain"
	pkgkafka "github.com/utafrali/authcore/pkg/kafka"
)

// Type names an authcore event. Each type has its own topic.
type Type string

const (
	TypeIdentityRegistered Type = "identity.registered"
	TypeSessionCreated     Type = "session.created"
	TypeSessionRefreshed   Type = "session.refreshed"
	TypeSessionRevoked     Type = "session.revoked"
)

// Topic returns the Kafka topic events of type t are written to.
func (t Type) Topic() string { return topicPrefix + string(t) }

const (
	topicPrefix    = "authcore."
	SourceAuthcore = "authcore"
	envelopeSchema = 1
)

// Envelope wraps every authcore event. All events are keyed by the identity
// they concern, so one identity's history stays ordered on one partition.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	Schema        int             `json:"schema"`
	IdentityID    string          `json:"identity_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

func newEnvelope(t Type, identityID string, data any) (*Envelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Type:       t,
		Schema:     envelopeSchema,
		IdentityID: identityID,
		OccurredAt: time.Now().UTC(),
		Source:     SourceAuthcore,
		Data:       payload,
	}, nil
}

// NewIdentityRegistered builds an identity.registered envelope.
func NewIdentityRegistered(identity *domain.Identity) (*Envelope, error) {
	return newEnvelope(TypeIdentityRegistered, identity.ID, IdentityRegisteredData{
		ID:        identity.ID,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		RoleID:    identity.RoleID,
		Provider:  identity.Provider,
	})
}

// NewSessionCreated builds a session.created envelope.
func NewSessionCreated(identityID, source string, fp domain.Fingerprint) (*Envelope, error) {
	return newEnvelope(TypeSessionCreated, identityID, SessionCreatedData{
		IdentityID: identityID,
		Source:     source,
		IP:         fp.IP,
		UserAgent:  fp.UserAgent,
	})
}

// NewSessionRefreshed builds a session.refreshed envelope.
func NewSessionRefreshed(identityID string, fp domain.Fingerprint) (*Envelope, error) {
	return newEnvelope(TypeSessionRefreshed, identityID, SessionRefreshedData{
		IdentityID: identityID,
		IP:         fp.IP,
	})
}

// NewSessionRevoked builds a session.revoked envelope.
func NewSessionRevoked(identityID, reason string, count int64) (*Envelope, error) {
	return newEnvelope(TypeSessionRevoked, identityID, SessionRevokedData{
		IdentityID: identityID,
		Reason:     reason,
		Count:      count,
	})
}

// DecodeEnvelope parses an envelope read from a topic.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}

// DecodeData decodes the payload into target.
func (e *Envelope) DecodeData(target any) error {
	return json.Unmarshal(e.Data, target)
}

// Record encodes e for the Kafka producer.
func (e *Envelope) Record() (pkgkafka.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return pkgkafka.Record{}, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}

	headers := map[string]string{
		"event_type": string(e.Type),
		"source":     e.Source,
	}
	if e.CorrelationID != "" {
		headers["correlation_id"] = e.CorrelationID
	}

	return pkgkafka.Record{
		Topic:   e.Type.Topic(),
		Key:     e.IdentityID,
		Value:   value,
		Headers: headers,
	}, nil
}
