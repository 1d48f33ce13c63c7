package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockTransport is an http.RoundTripper that delegates to a handler function.
type mockTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

// jsonResponse builds a fake *http.Response with the given status and JSON body.
func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// newRefresherWithTransport creates an HTTPRefresher with a custom HTTP transport.
func newRefresherWithTransport(t *testing.T, fn func(*http.Request) (*http.Response, error)) *HTTPRefresher {
	t.Helper()
	r := NewHTTPRefresher(zap.NewNop(), "https://api.test.freshmotors.example", 5*time.Second)
	r.client = &http.Client{Transport: &mockTransport{fn: fn}}
	return r
}

// ─── Refresh: success with rotation ──────────────────────────────────────────

func TestHTTPRefresher_SuccessWithRotation(t *testing.T) {
	var captured refreshRequest

	r := newRefresherWithTransport(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/token/refresh/", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		_ = json.NewDecoder(req.Body).Decode(&captured)
		return jsonResponse(http.StatusOK, `{"access":"A2","refresh":"R2"}`), nil
	})

	tokens, err := r.Refresh(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", captured.Refresh, "request must carry the current refresh token")
	assert.Equal(t, Tokens{Access: "A2", Refresh: "R2"}, tokens)
}

// ─── Refresh: no rotation keeps the old refresh token ────────────────────────

func TestHTTPRefresher_NoRotationKeepsOldToken(t *testing.T) {
	r := newRefresherWithTransport(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"access":"A2"}`), nil
	})

	tokens, err := r.Refresh(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "A2", tokens.Access)
	assert.Equal(t, "R1", tokens.Refresh, "absent rotation must keep the previous refresh token")
}

// ─── Refresh: non-2xx is a failure ───────────────────────────────────────────

func TestHTTPRefresher_NonOKStatus(t *testing.T) {
	r := newRefresherWithTransport(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"detail":"token invalid"}`), nil
	})

	_, err := r.Refresh(context.Background(), "R1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// ─── Refresh: empty access token is a failure ────────────────────────────────

func TestHTTPRefresher_EmptyAccessToken(t *testing.T) {
	r := newRefresherWithTransport(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"access":""}`), nil
	})

	_, err := r.Refresh(context.Background(), "R1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing access token")
}

// ─── Refresh: invalid JSON is a failure ──────────────────────────────────────

func TestHTTPRefresher_InvalidJSON(t *testing.T) {
	r := newRefresherWithTransport(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{not valid json`), nil
	})

	_, err := r.Refresh(context.Background(), "R1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode refresh response")
}
