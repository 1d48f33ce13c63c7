package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Session bundles the token store and refresh coordinator for one browser
// session. Requests carry their Session through the context so a single SDK
// client (and its Transport) can serve many sessions.
type Session struct {
	ID          string
	Store       Store
	Coordinator *Coordinator
}

type sessionCtxKey struct{}

// WithSession attaches a Session to the context for the Transport to pick up.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFrom extracts the Session attached by WithSession, if any.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return s, ok
}

// Transport is an http.RoundTripper that attaches the session's bearer token
// to outgoing requests and transparently recovers from a 401 by running one
// coordinated refresh followed by exactly one retry of the original request.
//
// A request whose retry is rejected again surfaces ErrRetryExhausted; the
// retry path never re-enters the refresh logic, so a backend that rejects
// freshly minted tokens cannot cause a loop.
type Transport struct {
	logger  *zap.Logger
	base    http.RoundTripper
	session *Session
}

// NewTransport wraps base (nil means http.DefaultTransport). session is the
// fallback used when the request context carries none; pass nil for a
// gateway-style transport that relies on WithSession exclusively.
func NewTransport(logger *zap.Logger, base http.RoundTripper, session *Session) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		logger:  logger,
		base:    base,
		session: session,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	sess, ok := SessionFrom(req.Context())
	if !ok {
		sess = t.session
	}
	if sess == nil {
		// No session at all: plain pass-through, unauthenticated.
		return t.base.RoundTrip(req)
	}

	tokens, err := sess.Store.Get(req.Context())
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}

	first := cloneWithAuth(req, tokens.Access)
	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// 401: the request body must be replayable for a retry to be possible.
	if req.Body != nil && req.GetBody == nil {
		t.logger.Warn("auth.retry_skipped_unreplayable_body",
			zap.String("url", req.URL.String()))
		return resp, nil
	}
	drain(resp)

	fresh, err := sess.Coordinator.WaitForFresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry := cloneWithAuth(req, fresh.Access)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		retry.Body = body
	}

	resp, err = t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		t.logger.Warn("auth.retry_exhausted",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()))
		return nil, fmt.Errorf("%s %s rejected after refresh: %w", req.Method, req.URL.Path, ErrRetryExhausted)
	}
	return resp, nil
}

// cloneWithAuth copies the request and sets (or strips) the Authorization header.
func cloneWithAuth(req *http.Request, access string) *http.Request {
	out := req.Clone(req.Context())
	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
