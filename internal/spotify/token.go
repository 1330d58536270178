// Package spotify talks to the Spotify accounts service and Web API at the
// HTTP level: credential lifecycle, catalog search, playlist paging and
// playback control.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/DerGorn/RapMich/internal/core"
)

// ExpiryMargin is the safety window subtracted from a credential's expiry: a
// token this close to expiring is treated as already invalid so it never
// dies mid-request.
const ExpiryMargin = 2 * time.Second

// Scopes requested from the user during the authorization-code flow.
var userScopes = []string{"user-modify-playback-state", "user-read-playback-state"}

// Credential is a bearer token with its absolute expiry and, for user
// credentials, the refresh token issued alongside it.
type Credential struct {
	Token        string    `json:"token"`
	Expiry       time.Time `json:"expiry"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// Valid reports whether the credential is usable at the given instant,
// honoring the expiry safety margin.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.Expiry.Add(-ExpiryMargin))
}

// TokenManager acquires and refreshes the two credential kinds. The app
// credential (client-credentials grant) is process-wide; user credentials
// (authorization-code grant) are owned by the caller's session and only pass
// through here for validation and refresh.
type TokenManager struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	http   *http.Client

	mu  sync.Mutex
	app Credential

	now func() time.Time
}

func NewTokenManager(config *core.SpotifyConfig, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		config: config,
		logger: logger,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

// AppCredential returns the shared client-credentials token, requesting a
// fresh one when the stored credential is absent or inside the expiry
// margin. Concurrent refreshes may race; both resulting tokens are valid, so
// the mutex only guards the stored value, not the acquisition.
func (m *TokenManager) AppCredential(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	cred := m.app
	m.mu.Unlock()

	if cred.Valid(m.now()) {
		return cred, nil
	}

	cred, err := m.requestToken(ctx, url.Values{"grant_type": {"client_credentials"}})
	if err != nil {
		return Credential{}, fmt.Errorf("client-credentials grant failed: %w", err)
	}

	m.mu.Lock()
	m.app = cred
	m.mu.Unlock()

	m.logger.Debug("Acquired app credential", zap.Time("expiry", cred.Expiry))
	return cred, nil
}

// UserCredential validates the session's stored credential. A still-valid
// credential is returned unchanged. An expired one with a refresh token on
// file is refreshed; otherwise, or when the refresh fails, ErrAuthRequired
// is returned and the caller must send the user back through the login flow.
func (m *TokenManager) UserCredential(ctx context.Context, cred Credential) (Credential, error) {
	if cred.Valid(m.now()) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		return Credential{}, core.ErrAuthRequired
	}

	refreshed, err := m.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
	})
	if err != nil {
		m.logger.Warn("User token refresh failed, re-authorization needed", zap.Error(err))
		return Credential{}, fmt.Errorf("%w: %s", core.ErrAuthRequired, err)
	}

	// Spotify omits the refresh token from refresh responses; keep the one
	// already on file.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}

	m.logger.Debug("Refreshed user credential", zap.Time("expiry", refreshed.Expiry))
	return refreshed, nil
}

// Exchange trades an authorization code for a user credential. Only the auth
// callback holds a code, so this is the single entry point that can mint a
// user credential from nothing.
func (m *TokenManager) Exchange(ctx context.Context, code, redirectURI string) (Credential, error) {
	cred, err := m.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("authorization-code grant failed: %w", err)
	}
	return cred, nil
}

// AuthCodeURL builds the consent redirect for the login flow.
func (m *TokenManager) AuthCodeURL(state, redirectURI string) string {
	conf := &oauth2.Config{
		ClientID:    m.config.ClientID,
		RedirectURL: redirectURI,
		Scopes:      userScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.config.AccountsURL + "/authorize",
			TokenURL: m.config.AccountsURL + "/api/token",
		},
	}
	return conf.AuthCodeURL(state)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// requestToken POSTs a form-encoded grant to the token endpoint with HTTP
// Basic auth built from the client id and secret.
func (m *TokenManager) requestToken(ctx context.Context, form url.Values) (Credential, error) {
	endpoint := m.config.AccountsURL + "/api/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(m.config.ClientID, m.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &core.RemoteError{
			Status:  resp.StatusCode,
			Msg:     "token endpoint rejected the grant",
			Details: extractErrorPayload(body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Credential{}, fmt.Errorf("malformed token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn == 0 {
		return Credential{}, fmt.Errorf("malformed token response: missing access_token or expires_in")
	}

	return Credential{
		Token:        tr.AccessToken,
		Expiry:       m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		RefreshToken: tr.RefreshToken,
	}, nil
}
