package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/config"
)

// Cookie names shared with the site frontend.
const (
	CookieAccess  = "access_token"
	CookieRefresh = "refresh_token"
	CookieSession = "fm_session"
)

// SessionMiddleware resolves the browser session for each request: it assigns
// a session ID on first contact, seeds the Redis mirror from the token cookies
// when the mirror is cold, attaches the auth.Session to the request context so
// the SDK transport can find it, and after the handler runs syncs whatever the
// refresh coordinator did (rotation or clear) back into the cookies.
func SessionMiddleware(logger *zap.Logger, mgr *auth.Manager, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(CookieSession)
		if sid == "" {
			sid = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     CookieSession,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(cfg.RefreshCookieMaxAge.Seconds()),
				SameSite: fiber.CookieSameSiteLaxMode,
				Secure:   cfg.SecureCookies,
				HTTPOnly: true,
			})
		}

		sess := mgr.Session(sid)
		c.SetUserContext(auth.WithSession(c.UserContext(), sess))

		cookieTokens := auth.Tokens{
			Access:  c.Cookies(CookieAccess),
			Refresh: c.Cookies(CookieRefresh),
		}

		// Cold mirror (first request, or Redis restarted): the cookies are the
		// source of truth, copy them in.
		if stored, err := sess.Store.Get(c.UserContext()); err == nil && stored.Empty() && !cookieTokens.Empty() {
			if err := sess.Store.Set(c.UserContext(), cookieTokens); err != nil {
				logger.Warn("api.session_seed_failed",
					zap.String("session_id", sid),
					zap.Error(err))
			}
		}

		err := c.Next()

		// Push any rotation or clear performed during the request back to the
		// browser. Cookie writes are idempotent, so unchanged tokens are skipped.
		after, gerr := sess.Store.Get(c.UserContext())
		if gerr != nil {
			logger.Warn("api.session_sync_failed",
				zap.String("session_id", sid),
				zap.Error(gerr))
			return err
		}
		switch {
		case after.Empty() && !cookieTokens.Empty():
			clearTokenCookies(c, cfg)
		case !after.Empty() && after != cookieTokens:
			setTokenCookies(c, after, cfg)
		}
		return err
	}
}

// setTokenCookies writes both token cookies with the configured attributes.
func setTokenCookies(c *fiber.Ctx, t auth.Tokens, cfg *config.Config) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieAccess,
		Value:    t.Access,
		Path:     "/",
		MaxAge:   int(cfg.AccessCookieMaxAge.Seconds()),
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   cfg.SecureCookies,
	})
	c.Cookie(&fiber.Cookie{
		Name:     CookieRefresh,
		Value:    t.Refresh,
		Path:     "/",
		MaxAge:   int(cfg.RefreshCookieMaxAge.Seconds()),
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   cfg.SecureCookies,
		HTTPOnly: true,
	})
}

// clearTokenCookies expires both token cookies.
func clearTokenCookies(c *fiber.Ctx, cfg *config.Config) {
	for _, name := range []string{CookieAccess, CookieRefresh} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   cfg.SecureCookies,
		})
	}
}
