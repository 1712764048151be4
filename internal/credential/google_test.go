package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/httpclient"
)

type fakeGoogle struct {
	tokenStatus    int
	userInfoStatus int
	userInfo       map[string]any
	gotCode        string
	gotAuth        string
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.gotCode = r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if f.userInfoStatus != 0 && f.userInfoStatus != http.StatusOK {
			w.WriteHeader(f.userInfoStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	return mux
}

func newTestGoogle(t *testing.T, f *fakeGoogle) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	client := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), httpclient.DefaultCircuitBreakerConfig("google-test"), discardLogger())

	return NewGoogleProvider(
		GoogleConfig{ClientID: "client-id", ClientSecret: "client-secret", CallbackURL: "http://localhost:3000/api/auth/google/callback"},
		client,
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithUserInfoURL(srv.URL+"/userinfo"),
	)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	p := newTestGoogle(t, &fakeGoogle{})
	raw := p.AuthCodeURL("state-123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/api/auth/google/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestGoogleProvider_Exchange(t *testing.T) {
	f := &fakeGoogle{userInfo: map[string]any{
		"sub":            "sub-1",
		"email":          "person@example.com",
		"email_verified": true,
		"given_name":     "Pat",
		"family_name":    "Doe",
	}}
	p := newTestGoogle(t, f)

	a, err := p.Exchange(context.Background(), "auth-code")

	require.NoError(t, err)
	assert.Equal(t, "auth-code", f.gotCode)
	assert.Equal(t, "Bearer provider-token", f.gotAuth)
	assert.Equal(t, ProviderAssertion{
		Provider:   SourceGoogle,
		Subject:    "sub-1",
		Email:      "person@example.com",
		GivenName:  "Pat",
		FamilyName: "Doe",
	}, *a)
}

func TestGoogleProvider_Exchange_UnverifiedEmailDropped(t *testing.T) {
	f := &fakeGoogle{userInfo: map[string]any{
		"sub":            "sub-1",
		"email":          "person@example.com",
		"email_verified": false,
	}}
	p := newTestGoogle(t, f)

	a, err := p.Exchange(context.Background(), "auth-code")

	require.NoError(t, err)
	assert.Empty(t, a.Email)
}

func TestGoogleProvider_Exchange_RejectedCode(t *testing.T) {
	p := newTestGoogle(t, &fakeGoogle{tokenStatus: http.StatusBadRequest})

	_, err := p.Exchange(context.Background(), "bad-code")

	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestGoogleProvider_Exchange_EmptyCode(t *testing.T) {
	p := newTestGoogle(t, &fakeGoogle{})
	_, err := p.Exchange(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestGoogleProvider_Exchange_UserInfoUnauthorized(t *testing.T) {
	p := newTestGoogle(t, &fakeGoogle{userInfoStatus: http.StatusUnauthorized})

	_, err := p.Exchange(context.Background(), "auth-code")

	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestGoogleProvider_Exchange_MissingSubject(t *testing.T) {
	p := newTestGoogle(t, &fakeGoogle{userInfo: map[string]any{"email": "x@example.com", "email_verified": true}})

	_, err := p.Exchange(context.Background(), "auth-code")

	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}
