package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/rate"
)

// errTransport fails every round trip with a fixed error.
type errTransport struct{ err error }

func (t *errTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, t.err
}

func newTestExecutor(client *http.Client, retryMax int, errorHandler func(int, []byte) error) *Executor {
	return New(zap.NewNop(), rate.NewManager(rate.Config{RequestsPerSecond: 1000, Burst: 1000}), client, retryMax, "backend", errorHandler)
}

func TestExecutor_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"title":"New EV breaks range record"}`)
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.Client(), 2, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/articles/1/", nil)

	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, exec.DoJSON(context.Background(), req, "articles", &out))
	assert.Equal(t, "New EV breaks range record", out.Title)
}

func TestExecutor_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.Client(), 2, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/articles/", nil)

	require.NoError(t, exec.DoJSON(context.Background(), req, "articles", nil))
	assert.EqualValues(t, 3, hits.Load())
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.Client(), 2, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/articles/", nil)

	err := exec.DoJSON(context.Background(), req, "articles", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.EqualValues(t, 3, hits.Load())
}

func TestExecutor_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"not found"}`)
	}))
	defer srv.Close()

	handled := false
	exec := newTestExecutor(srv.Client(), 2, func(status int, body []byte) error {
		handled = true
		assert.Equal(t, http.StatusNotFound, status)
		return fmt.Errorf("backend: %s", body)
	})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/articles/999/", nil)

	err := exec.DoJSON(context.Background(), req, "articles", nil)
	require.Error(t, err)
	assert.True(t, handled)
	assert.EqualValues(t, 1, hits.Load(), "4xx responses are terminal")
}

func TestExecutor_AuthErrorsShortCircuit(t *testing.T) {
	client := &http.Client{Transport: &errTransport{err: fmt.Errorf("expired: %w", auth.ErrSessionExpired)}}
	exec := newTestExecutor(client, 2, nil)
	req, _ := http.NewRequest(http.MethodGet, "http://backend.test/articles/", nil)

	err := exec.DoJSON(context.Background(), req, "articles", nil)
	assert.ErrorIs(t, err, auth.ErrSessionExpired, "terminal auth errors must not be retried")

	client = &http.Client{Transport: &errTransport{err: fmt.Errorf("rejected: %w", auth.ErrRetryExhausted)}}
	exec = newTestExecutor(client, 2, nil)
	err = exec.DoJSON(context.Background(), req.Clone(context.Background()), "articles", nil)
	assert.ErrorIs(t, err, auth.ErrRetryExhausted)
}

func TestExecutor_RewindsBodyBetweenAttempts(t *testing.T) {
	var hits atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.Client(), 2, nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/articles/", strings.NewReader(`{"title":"x"}`))

	require.NoError(t, exec.DoJSON(context.Background(), req, "articles", nil))
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1], "every attempt must carry the full body")
}

func TestExecutor_RateLimitRespectsContext(t *testing.T) {
	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, mgr.Wait(context.Background(), "articles")) // drain the bucket

	exec := New(zap.NewNop(), mgr, http.DefaultClient, 0, "backend", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, "http://backend.test/articles/", nil)
	err := exec.DoJSON(ctx, req, "articles", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
