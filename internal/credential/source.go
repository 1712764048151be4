// Package credential verifies presented credentials and resolves them to an
// Identity. Every source converges on the same token issuance path.
package credential

import (
	"context"

	"github.com/utafrali/authcore/internal/domain"
)

// Source names used in logs and metrics.
const (
	SourceLocal  = "local"
	SourceGoogle = "google"
)

// Credentials is what a client presents to a Source. Local sources read
// Identifier and Secret; external sources read Assertion.
type Credentials struct {
	Identifier string
	Secret     string
	Assertion  *ProviderAssertion
}

// ProviderAssertion is the identity an external provider vouches for.
type ProviderAssertion struct {
	Provider   string
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
}

// Source authenticates Credentials. Failures that a caller could use to tell
// accounts apart wrap domain.ErrInvalidCredential.
type Source interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*domain.Identity, error)
}
