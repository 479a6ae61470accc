// Package api implements the REST client for the convo backend. Every
// operation attaches bearer-token authorization from a TokenSource, maps
// backend error payloads onto the client error taxonomy and normalizes
// message shapes for the UI.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"convo/internal/logging"
	"convo/internal/types"
)

// TokenSource supplies and refreshes the bearer token. internal/auth
// provides the production implementation.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// RemoteSession is a chat session as the backend reports it (no messages).
type RemoteSession struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Title     string          `json:"title"`
	CreatedAt json.RawMessage `json:"created_at"`
	UpdatedAt json.RawMessage `json:"updated_at"`
}

// History converts the remote session into an empty local ChatHistory.
func (s RemoteSession) History() *types.ChatHistory {
	title := s.Name
	if title == "" {
		title = s.Title
	}
	return &types.ChatHistory{
		ID:        s.ID,
		Title:     title,
		CreatedAt: normalizeTimestamp(s.CreatedAt),
		UpdatedAt: normalizeTimestamp(s.UpdatedAt, s.CreatedAt),
	}
}

// Pagination echoes the backend's paging envelope.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Answer is the assistant's reply to a posted message.
type Answer struct {
	Answer  string         `json:"answer"`
	Sources []types.Source `json:"sources"`
}

// Client issues REST calls against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient builds a client for the given base URL. timeout bounds every
// call including the assistant generation round-trip.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// do executes one authenticated request. A 401 triggers exactly one token
// refresh-and-retry; a second 401 surfaces as ErrUnauthorized. All other
// non-2xx statuses are mapped through the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	timer := logging.StartTimer(logging.CategoryAPI, method+" "+path)
	defer timer.Stop()

	retried := false
	for {
		access, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+access)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			logging.APIError("%s %s: transport failure: %v", method, path, err)
			return &NetworkError{Op: method + " " + path, Err: err}
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			resp.Body.Close()
			logging.API("%s %s: 401, attempting token refresh", method, path)
			if err := c.tokens.Refresh(ctx); err != nil {
				return ErrUnauthorized
			}
			retried = true
			continue
		}

		return c.decodeResponse(method, path, resp, out)
	}
}

func (c *Client) decodeResponse(method, path string, resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var body errorBody
		_ = json.Unmarshal(raw, &body) // lenient: plain-text bodies fall through

		msg, quota := translate(body)
		logging.APIError("%s %s: status=%d msg=%q", method, path, resp.StatusCode, msg)

		if resp.StatusCode == http.StatusTooManyRequests || quota != nil {
			qe := &QuotaError{Scope: "daily"}
			if quota != nil {
				qe.Current, qe.Limit = quota.Current, quota.Limit
				if quota.Scope != "" {
					qe.Scope = quota.Scope
				}
			}
			return qe
		}
		return &ServerError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// List fetches one page of the user's sessions.
func (c *Client) List(ctx context.Context, page, limit int) ([]RemoteSession, Pagination, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Sessions   []RemoteSession `json:"sessions"`
		Pagination Pagination      `json:"pagination"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, Pagination{}, err
	}
	return out.Sessions, out.Pagination, nil
}

// Create registers a session server-side and returns its canonical record.
// The request carries the name duplicated into a title field because older
// backend revisions read one and newer ones the other.
func (c *Client) Create(ctx context.Context, name string) (RemoteSession, error) {
	body, err := json.Marshal(map[string]string{"name": name, "title": name})
	if err != nil {
		return RemoteSession{}, err
	}
	var out RemoteSession
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &out); err != nil {
		return RemoteSession{}, err
	}
	return out, nil
}

// Rename updates the session title.
func (c *Client) Rename(ctx context.Context, id, name string) (RemoteSession, error) {
	body, err := json.Marshal(map[string]string{"name": name, "title": name})
	if err != nil {
		return RemoteSession{}, err
	}
	var out RemoteSession
	if err := c.do(ctx, http.MethodPut, "/api/v1/sessions/"+url.PathEscape(id), body, &out); err != nil {
		return RemoteSession{}, err
	}
	return out, nil
}

// Delete removes a session. A 404 is treated as success: the caller drops
// its local copy regardless, so an already-gone session is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil)
	var se *ServerError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		logging.APIDebug("delete %s: already gone (404), treating as success", id)
		return nil
	}
	return err
}

// FetchMessages retrieves and normalizes the full message list of a session.
func (c *Client) FetchMessages(ctx context.Context, id string) ([]types.Message, error) {
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/messages"

	// Newer backends wrap the list, older ones return a bare array.
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var rawMsgs []rawMessage
	if err := json.Unmarshal(raw, &rawMsgs); err != nil {
		var wrapped struct {
			Messages []rawMessage `json:"messages"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("fetch messages %s: unrecognized response shape: %w", id, err)
		}
		rawMsgs = wrapped.Messages
	}

	msgs := make([]types.Message, 0, len(rawMsgs))
	for _, rm := range rawMsgs {
		msgs = append(msgs, normalizeMessage(rm))
	}
	return msgs, nil
}

// PostMessage sends the user's turn and returns the assistant's reply. The
// backend appends the user message server-side, so this single round-trip
// covers the whole exchange.
func (c *Client) PostMessage(ctx context.Context, id, userQuery string) (Answer, error) {
	body, err := json.Marshal(map[string]string{"userQuery": userQuery})
	if err != nil {
		return Answer{}, err
	}
	var out Answer
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/messages"
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return Answer{}, err
	}
	return out, nil
}

// GetUsage fetches the current quota snapshot.
func (c *Client) GetUsage(ctx context.Context) (types.Usage, error) {
	var out types.Usage
	if err := c.do(ctx, http.MethodGet, "/api/users/me/usage", nil, &out); err != nil {
		return types.Usage{}, err
	}
	return out, nil
}
