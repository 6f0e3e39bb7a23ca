// Package api is the HTTP client for the payments backend: wallet login,
// registration, user search, avatars and the transaction log.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxErrorBody = 64 << 10

// Client provides a backend client with rate limiting and structured logging.
// Calls are never retried; every retry is a fresh user action.
type Client struct {
	BaseURL     string
	RateLimiter *rate.Limiter
	Logger      *zerolog.Logger
	HTTPClient  *http.Client
}

// NewClient creates a new backend client with the given configuration.
// A non-positive rateLimit disables limiting.
func NewClient(baseURL string, rateLimit float64, httpTimeout time.Duration, logger *zerolog.Logger) *Client {
	limit := rate.Limit(rateLimit)
	if rateLimit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		BaseURL:     baseURL,
		RateLimiter: rate.NewLimiter(limit, 1),
		Logger:      logger,
		HTTPClient: &http.Client{
			Timeout: httpTimeout,
			Transport: &BearerTransport{
				Base: http.DefaultTransport,
			},
		},
	}
}

type tokenKey struct{}

// WithToken attaches a bearer token to ctx for BearerTransport.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// BearerTransport adds the session bearer token to HTTP requests
type BearerTransport struct {
	Base http.RoundTripper
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, _ := req.Context().Value(tokenKey{}).(string)
	if token == "" {
		return t.Base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.Base.RoundTrip(req)
}

// RequestAuthMessage asks for the challenge message the wallet has to sign.
func (c *Client) RequestAuthMessage(ctx context.Context, address string) (string, error) {
	var resp AuthMessageResponse
	if err := c.postJSON(ctx, "/auth/message", AuthMessageRequest{Address: address}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Login exchanges a signed challenge for a bearer token.
func (c *Client) Login(ctx context.Context, address, signature string) (*AuthLoginResponse, error) {
	var resp AuthLoginResponse
	req := AuthLoginRequest{Address: address, Signature: signature}
	if err := c.postJSON(ctx, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, token, username string) (bool, error) {
	var resp AuthRegisterResponse
	if err := c.postJSON(WithToken(ctx, token), "/auth/register", AuthRegisterRequest{Username: username}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) IsRegistered(ctx context.Context, token string) (*AuthIsRegisteredResponse, error) {
	var resp AuthIsRegisteredResponse
	if err := c.getJSON(WithToken(ctx, token), "/auth/is-registered", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UsernameAvailable reports whether the ENS-style username is free. The token is optional.
func (c *Client) UsernameAvailable(ctx context.Context, token, username string) (bool, error) {
	var resp AuthCheckUsernameResponse
	path := "/auth/available-ens/" + url.PathEscape(username)
	if err := c.getJSON(WithToken(ctx, token), path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

func (c *Client) Avatar(ctx context.Context, token string) (string, error) {
	var avatarURL string
	if err := c.getJSON(WithToken(ctx, token), "/user/avatar", nil, &avatarURL); err != nil {
		return "", err
	}
	return avatarURL, nil
}

// UploadAvatar sends the image as multipart field "file" and returns the new avatar URL.
func (c *Client) UploadAvatar(ctx context.Context, token, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var avatarURL string
	err = c.do(WithToken(ctx, token), http.MethodPost, "/user/avatar", nil, mw.FormDataContentType(), &buf, &avatarURL)
	if err != nil {
		return "", err
	}
	return avatarURL, nil
}

func (c *Client) Transactions(ctx context.Context, token string) ([]Transaction, error) {
	var resp GetTransactionsResponse
	if err := c.getJSON(WithToken(ctx, token), "/user/transactions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) (*SearchUsersResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp SearchUsersResponse
	if err := c.getJSON(ctx, "/user/search", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, "", nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out interface{}) error {
	c.Logger.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Calling backend")

	if err := c.RateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Msg("Backend request failed")
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		be := newBackendError(resp.StatusCode, raw)
		c.Logger.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Str("error", be.Error()).
			Msg("Backend returned an error")
		return be
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed(path, err)
	}
	return nil
}
