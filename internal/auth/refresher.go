package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Refresher exchanges a refresh token for a fresh token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// refreshRequest is the payload for POST /token/refresh/.
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// refreshResponse is the backend's reply. The refresh field is only present
// when the backend rotates the refresh token.
type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// HTTPRefresher calls the backend refresh endpoint.
type HTTPRefresher struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

// NewHTTPRefresher creates a refresher against the given backend base URL.
// timeout bounds every refresh call; a timed-out refresh counts as a failure.
func NewHTTPRefresher(logger *zap.Logger, baseURL string, timeout time.Duration) *HTTPRefresher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRefresher{
		logger:  logger,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges refreshToken for new tokens.
// A response without a rotated refresh token keeps the old one.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	url := fmt.Sprintf("%s/token/refresh/", r.baseURL)
	data, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh endpoint unreachable: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Tokens{}, fmt.Errorf("refresh endpoint returned %d", resp.StatusCode)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return Tokens{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if rr.Access == "" {
		return Tokens{}, fmt.Errorf("refresh response missing access token")
	}

	next := Tokens{Access: rr.Access, Refresh: rr.Refresh}
	if next.Refresh == "" {
		next.Refresh = refreshToken
	}

	r.logger.Info("auth.refresh_success",
		zap.Bool("rotated", rr.Refresh != ""),
		zap.Time("access_expiry", next.AccessExpiry()))

	return next, nil
}
