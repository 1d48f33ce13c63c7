package api

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/freshmotors"
	"github.com/fresh-motors/gateway/internal/metrics"
	"github.com/fresh-motors/gateway/internal/telemetry"
	"github.com/fresh-motors/gateway/pkg/secrets"
)

// Handler serves the gateway's HTTP API on top of the backend SDK.
type Handler struct {
	logger   *zap.Logger
	sdk      *freshmotors.Client
	beacons  *telemetry.BeaconWriter
	settings *secrets.Cache[freshmotors.SiteSettings]
}

// NewHandler creates the gateway handler. settingsTTL bounds how stale the
// maintenance-mode flag may be.
func NewHandler(logger *zap.Logger, sdk *freshmotors.Client, beacons *telemetry.BeaconWriter, settingsTTL time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		sdk:      sdk,
		beacons:  beacons,
		settings: secrets.NewCache[freshmotors.SiteSettings](settingsTTL),
	}
}

// StartSettingsCleaner evicts expired settings cache entries on a ticker
// until stop closes. Run it in a goroutine from main.
func (h *Handler) StartSettingsCleaner(interval time.Duration, stop <-chan struct{}) {
	h.settings.StartCleaner(interval, stop)
}

// fail maps SDK errors to HTTP responses. Terminal session expiry becomes a
// single redirect to the login page carrying the originating path.
func (h *Handler) fail(c *fiber.Ctx, route string, err error) error {
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		h.logger.Info("api.session_expired_redirect",
			zap.String("route", route),
			zap.String("path", c.Path()))
		return c.Redirect("/login?redirect="+url.QueryEscape(c.OriginalURL()), fiber.StatusSeeOther)
	case errors.Is(err, auth.ErrRetryExhausted):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authorization rejected by backend"})
	default:
		h.logger.Warn("api."+route+".failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
}

// observe records proxy metrics for one handled request.
func observe(route, method string, start time.Time, status int) {
	metrics.ProxyRequestsTotal.WithLabelValues(route, method, statusLabel(status)).Inc()
	metrics.ObserveDuration(metrics.ProxyRequestDuration, start, route, method)
}

func statusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// --- auth ---

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials at the backend and installs the token pair into
// the session (cookies are synced by the session middleware).
func (h *Handler) Login(c *fiber.Ctx) error {
	var body loginBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if body.Email == "" || body.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email and password are required"})
	}

	tokens, err := h.sdk.Login(c.UserContext(), body.Email, body.Password)
	if err != nil {
		h.logger.Warn("api.login_failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}

	sess, ok := auth.SessionFrom(c.UserContext())
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "no session"})
	}
	if err := sess.Store.Set(c.UserContext(), tokens); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	h.logger.Info("api.login_success", zap.String("session_id", sess.ID))
	return c.SendStatus(fiber.StatusNoContent)
}

// Logout clears the session's tokens; the middleware expires the cookies.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if sess, ok := auth.SessionFrom(c.UserContext()); ok {
		if err := sess.Store.Clear(c.UserContext()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- content ---

// ListArticles proxies the public article listing.
func (h *Handler) ListArticles(c *fiber.Ctx) error {
	start := time.Now()
	q := freshmotors.ArticleQuery{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	list, err := h.sdk.ListArticles(c.UserContext(), q)
	if err != nil {
		observe("articles.list", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "articles.list", err)
	}
	observe("articles.list", c.Method(), start, fiber.StatusOK)
	return c.JSON(list)
}

// GetArticle proxies one article and records the view.
func (h *Handler) GetArticle(c *fiber.Ctx) error {
	start := time.Now()
	slug := c.Params("slug")

	article, err := h.sdk.GetArticle(c.UserContext(), slug)
	if err != nil {
		observe("articles.get", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "articles.get", err)
	}

	if err := h.sdk.RecordView(c.UserContext(), slug); err != nil {
		// View counting is best effort.
		h.logger.Debug("api.record_view_failed", zap.String("slug", slug), zap.Error(err))
	}

	observe("articles.get", c.Method(), start, fiber.StatusOK)
	return c.JSON(article)
}

// CreateArticle proxies admin article creation.
func (h *Handler) CreateArticle(c *fiber.Ctx) error {
	start := time.Now()
	var in freshmotors.ArticleInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	article, err := h.sdk.CreateArticle(c.UserContext(), in)
	if err != nil {
		observe("articles.create", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "articles.create", err)
	}
	observe("articles.create", c.Method(), start, fiber.StatusCreated)
	return c.Status(fiber.StatusCreated).JSON(article)
}

// UpdateArticle proxies admin article updates.
func (h *Handler) UpdateArticle(c *fiber.Ctx) error {
	start := time.Now()
	var in freshmotors.ArticleInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	article, err := h.sdk.UpdateArticle(c.UserContext(), c.Params("slug"), in)
	if err != nil {
		observe("articles.update", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "articles.update", err)
	}
	observe("articles.update", c.Method(), start, fiber.StatusOK)
	return c.JSON(article)
}

// DeleteArticle proxies admin article deletion.
func (h *Handler) DeleteArticle(c *fiber.Ctx) error {
	start := time.Now()
	if err := h.sdk.DeleteArticle(c.UserContext(), c.Params("slug")); err != nil {
		observe("articles.delete", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "articles.delete", err)
	}
	observe("articles.delete", c.Method(), start, fiber.StatusNoContent)
	return c.SendStatus(fiber.StatusNoContent)
}

// ListCategories proxies the category listing.
func (h *Handler) ListCategories(c *fiber.Ctx) error {
	start := time.Now()
	cats, err := h.sdk.ListCategories(c.UserContext())
	if err != nil {
		observe("categories.list", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "categories.list", err)
	}
	observe("categories.list", c.Method(), start, fiber.StatusOK)
	return c.JSON(cats)
}

// ListAds proxies active ad placements.
func (h *Handler) ListAds(c *fiber.Ctx) error {
	start := time.Now()
	ads, err := h.sdk.ListAds(c.UserContext(), c.Query("placement"))
	if err != nil {
		observe("ads.list", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "ads.list", err)
	}
	observe("ads.list", c.Method(), start, fiber.StatusOK)
	return c.JSON(ads)
}

// GetCarSpec proxies one vehicle spec sheet.
func (h *Handler) GetCarSpec(c *fiber.Ctx) error {
	start := time.Now()
	spec, err := h.sdk.GetCarSpec(c.UserContext(), c.Params("slug"))
	if err != nil {
		observe("cars.get", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "cars.get", err)
	}
	observe("cars.get", c.Method(), start, fiber.StatusOK)
	return c.JSON(spec)
}

// CompareCars proxies the spec comparison endpoint. ?slugs=a,b,c
func (h *Handler) CompareCars(c *fiber.Ctx) error {
	start := time.Now()
	slugs := strings.Split(c.Query("slugs"), ",")
	if len(slugs) < 2 || slugs[0] == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "at least two slugs are required"})
	}

	specs, err := h.sdk.CompareCarSpecs(c.UserContext(), slugs)
	if err != nil {
		observe("cars.compare", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "cars.compare", err)
	}
	observe("cars.compare", c.Method(), start, fiber.StatusOK)
	return c.JSON(specs)
}

// GetSettings proxies the site settings blob.
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	start := time.Now()
	s, err := h.sdk.GetSettings(c.UserContext())
	if err != nil {
		observe("settings.get", c.Method(), start, fiber.StatusBadGateway)
		return h.fail(c, "settings.get", err)
	}
	observe("settings.get", c.Method(), start, fiber.StatusOK)
	return c.JSON(s)
}

// --- telemetry ---

// Beacon ingests one page-view telemetry hit.
func (h *Handler) Beacon(c *fiber.Ctx) error {
	var b telemetry.Beacon
	if err := c.BodyParser(&b); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if b.SessionID == "" {
		b.SessionID = c.Cookies(CookieSession)
	}
	if b.UserAgent == "" {
		b.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	if b.OccurredAt.IsZero() {
		b.OccurredAt = time.Now().UTC()
	}

	if err := h.beacons.Write(c.UserContext(), &b); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "beacon not recorded"})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// --- maintenance ---

// MaintenanceGate blocks public traffic with 503 while the site settings flag
// maintenance mode. Admin routes stay reachable so the flag can be cleared,
// and settings failures fail open.
func (h *Handler) MaintenanceGate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api/v1/admin") {
			return c.Next()
		}

		s, ok := h.settings.Get("site")
		if !ok {
			fetched, err := h.sdk.GetSettings(c.UserContext())
			if err != nil {
				return c.Next()
			}
			s = *fetched
			h.settings.Put("site", s)
		}

		if s.MaintenanceMode {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "site is under maintenance",
			})
		}
		return c.Next()
	}
}
