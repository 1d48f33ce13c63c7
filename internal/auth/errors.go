package auth

import "errors"

var (
	// ErrSessionExpired indicates the refresh token is absent, rejected, or the
	// refresh endpoint was unreachable. Stored tokens have been cleared and the
	// caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrRetryExhausted indicates a request was rejected with 401 even after a
	// successful refresh+retry cycle. No further refresh is attempted for it.
	ErrRetryExhausted = errors.New("authorization retry exhausted")
)
