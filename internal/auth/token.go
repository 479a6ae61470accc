// Package auth owns the bearer token lifecycle: login, refresh, signout and
// on-disk persistence. The rest of the client only ever sees AccessToken()
// and Refresh().
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"convo/internal/logging"
	"convo/internal/types"
)

// expirySkew refreshes tokens slightly before their server-side deadline so
// an in-flight request does not race the expiry.
const expirySkew = 30 * time.Second

// ErrNotAuthenticated is returned when no token is stored at all. It is a
// client-side precondition failure, not a network error.
var ErrNotAuthenticated = fmt.Errorf("not authenticated: run `convo login`")

// Token holds the bearer token details persisted between runs.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email,omitempty"`
}

func (t *Token) expired() bool {
	if t.Expiry.IsZero() {
		return false // backend sent no expiry; let the server decide
	}
	return time.Now().After(t.Expiry.Add(-expirySkew))
}

// TokenManager persists tokens under the state directory and refreshes the
// access token through the backend when it expires.
type TokenManager struct {
	tokenFile string
	baseURL   string
	client    *http.Client

	mu    sync.Mutex
	token *Token
}

// NewTokenManager loads any existing token from <stateDir>/tokens.json.
func NewTokenManager(stateDir, baseURL string) (*TokenManager, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state directory required")
	}
	tm := &TokenManager{
		tokenFile: filepath.Join(stateDir, "tokens.json"),
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	_ = tm.load()
	return tm, nil
}

func (tm *TokenManager) load() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	data, err := os.ReadFile(tm.tokenFile)
	if err != nil {
		return err
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		logging.AuthWarn("malformed token file, ignoring: %v", err)
		return err
	}
	tm.token = &token
	return nil
}

func (tm *TokenManager) saveLocked() error {
	if tm.token == nil {
		return nil
	}
	data, err := json.MarshalIndent(tm.token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tm.tokenFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(tm.tokenFile, data, 0o600)
}

// SetToken stores a freshly issued token (login flow) and persists it.
func (tm *TokenManager) SetToken(token *Token) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = token
	return tm.saveLocked()
}

// Authenticated reports whether any token is stored locally. It says
// nothing about whether the server still accepts it.
func (tm *TokenManager) Authenticated() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token != nil && tm.token.AccessToken != ""
}

// Email returns the account email recorded at login, if any.
func (tm *TokenManager) Email() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.token == nil {
		return ""
	}
	return tm.token.Email
}

// AccessToken returns a valid bearer token, refreshing it first when the
// stored one has expired.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	token := tm.token
	tm.mu.Unlock()

	if token == nil {
		return "", ErrNotAuthenticated
	}
	if token.expired() && token.RefreshToken != "" {
		if err := tm.Refresh(ctx); err != nil {
			return "", err
		}
		tm.mu.Lock()
		token = tm.token
		tm.mu.Unlock()
	}
	return token.AccessToken, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresh exchanges the refresh token for a new access token and persists
// the result. Callers use it for the one-shot retry after a 401.
func (tm *TokenManager) Refresh(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil || tm.token.RefreshToken == "" {
		return ErrNotAuthenticated
	}

	logging.Auth("refreshing access token for %s", tm.token.Email)

	body, err := json.Marshal(refreshRequest{RefreshToken: tm.token.RefreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tm.baseURL+"/api/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.AuthWarn("token refresh rejected: status=%d body=%s", resp.StatusCode, raw)
		return fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("token refresh: decode response: %w", err)
	}

	tm.token.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		tm.token.RefreshToken = tr.RefreshToken
	}
	if tr.TokenType != "" {
		tm.token.TokenType = tr.TokenType
	}
	if tr.ExpiresIn > 0 {
		tm.token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tm.saveLocked()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	tokenResponse
	User types.User `json:"user"`
}

// Login authenticates against POST /api/auth/login and stores the issued
// token pair.
func (tm *TokenManager) Login(ctx context.Context, email, password string) (*types.User, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tm.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, raw)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}

	token := &Token{
		AccessToken:  lr.AccessToken,
		RefreshToken: lr.RefreshToken,
		TokenType:    lr.TokenType,
		Email:        lr.User.Email,
	}
	if lr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	}
	if err := tm.SetToken(token); err != nil {
		return nil, err
	}

	logging.Auth("logged in as %s (role=%s)", lr.User.Email, lr.User.Role)
	return &lr.User, nil
}

// Logout notifies the backend and removes the token file. The local state
// is cleared even when the signout call fails; a stale server session is
// the backend's problem, a stale local token is ours.
func (tm *TokenManager) Logout(ctx context.Context) error {
	tm.mu.Lock()
	token := tm.token
	tm.mu.Unlock()

	if token != nil && token.AccessToken != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			tm.baseURL+"/api/auth/signout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token.AccessToken)
			if resp, err := tm.client.Do(req); err == nil {
				resp.Body.Close()
			} else {
				logging.AuthWarn("signout call failed: %v", err)
			}
		}
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = nil
	if err := os.Remove(tm.tokenFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CurrentUser fetches the authenticated account from the backend.
func (tm *TokenManager) CurrentUser(ctx context.Context) (*types.User, error) {
	access, err := tm.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		tm.baseURL+"/api/auth/current-user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := tm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("current-user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("current-user failed with status %d", resp.StatusCode)
	}
	var user types.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("current-user: decode response: %w", err)
	}
	return &user, nil
}
