package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/httpclient"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithEndpoint overrides the OAuth endpoint.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(p *GoogleProvider) { p.oauth.Endpoint = ep }
}

// WithUserInfoURL overrides the userinfo URL.
func WithUserInfoURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.userInfoURL = u }
}

// GoogleProvider runs the authorization code flow against Google and turns the
// result into a ProviderAssertion.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *httpclient.CircuitBreakerClient
}

// NewGoogleProvider creates a GoogleProvider. All outbound calls go through
// client.
func NewGoogleProvider(cfg GoogleConfig, client *httpclient.CircuitBreakerClient, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
		client:      client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Exchange trades an authorization code for the user's profile. A rejected
// code wraps domain.ErrInvalidCredential. An unverified email is dropped so
// it is never used for account linking.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*ProviderAssertion, error) {
	if code == "" {
		return nil, fmt.Errorf("google exchange: %w", domain.ErrInvalidCredential)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client.HTTPClient())
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("google exchange: %s: %w", re.ErrorCode, domain.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("google exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "google userinfo")
	}
	defer func() { _ = resp.Body.Close() }()

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("google userinfo: missing subject: %w", domain.ErrInvalidCredential)
	}

	email := info.Email
	if !info.EmailVerified {
		email = ""
	}

	return &ProviderAssertion{
		Provider:   SourceGoogle,
		Subject:    info.Subject,
		Email:      email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
	}, nil
}
