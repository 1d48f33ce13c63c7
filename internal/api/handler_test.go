package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/config"
	"github.com/fresh-motors/gateway/internal/freshmotors"
	"github.com/fresh-motors/gateway/internal/rate"
	"github.com/fresh-motors/gateway/internal/telemetry"
)

// newTestApp wires a fiber app against a fake backend: real session
// middleware, real refresher, in-memory token stores.
func newTestApp(t *testing.T, backend http.HandlerFunc) *fiber.App {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	cfg := &config.Config{
		AccessCookieMaxAge:  7 * 24 * time.Hour,
		RefreshCookieMaxAge: 30 * 24 * time.Hour,
		RefreshTimeout:      2 * time.Second,
	}

	var stores sync.Map
	refresher := auth.NewHTTPRefresher(logger, srv.URL, 2*time.Second)
	mgr := auth.NewManager(logger, func(id string) auth.Store {
		s, _ := stores.LoadOrStore(id, auth.NewMemoryStore(auth.Tokens{}))
		return s.(*auth.MemoryStore)
	}, refresher, 2*time.Second, nil)

	httpClient := &http.Client{Transport: auth.NewTransport(logger, nil, nil)}
	rateMgr := rate.NewManager(rate.Config{RequestsPerSecond: 1000, Burst: 1000})
	sdk := freshmotors.NewClient(logger, rateMgr, httpClient, freshmotors.ClientConfig{BaseURL: srv.URL})

	h := NewHandler(logger, sdk, telemetry.NewBeaconWriter(nil, logger, "test"), time.Minute)
	session := SessionMiddleware(logger, mgr, cfg)

	app := fiber.New()
	app.Post("/login", session, h.Login)
	app.Post("/logout", session, h.Logout)
	app.Post("/beacon", session, h.Beacon)
	v1 := app.Group("/api/v1", session, h.MaintenanceGate())
	v1.Get("/articles", h.ListArticles)
	v1.Get("/cars/compare", h.CompareCars)
	v1.Get("/settings", h.GetSettings)
	admin := app.Group("/api/v1/admin", session, h.MaintenanceGate())
	admin.Delete("/articles/:slug", h.DeleteArticle)
	return app
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestSessionMiddleware_AssignsSessionCookie(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":0,"results":[]}`)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sid := cookieByName(resp, CookieSession)
	require.NotNil(t, sid, "first contact must assign a session cookie")
	assert.NotEmpty(t, sid.Value)
	assert.True(t, sid.HttpOnly)
}

func TestLogin_SetsTokenCookies(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/", r.URL.Path)
		fmt.Fprint(w, `{"access":"A1","refresh":"R1"}`)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"x@y.z","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	access := cookieByName(resp, CookieAccess)
	refresh := cookieByName(resp, CookieRefresh)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.Equal(t, "A1", access.Value)
	assert.Equal(t, "R1", refresh.Value)
	assert.True(t, refresh.HttpOnly, "refresh token must be unreadable from scripts")
	assert.False(t, access.HttpOnly, "frontend reads the access token for expiry display")
}

func TestLogin_RejectsMissingCredentials(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"x@y.z"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout_ClearsTokenCookies(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("logout is local to the gateway")
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sess-1"})
	req.AddCookie(&http.Cookie{Name: CookieAccess, Value: "A1"})
	req.AddCookie(&http.Cookie{Name: CookieRefresh, Value: "R1"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	access := cookieByName(resp, CookieAccess)
	require.NotNil(t, access, "expired cookie must be sent back")
	assert.Empty(t, access.Value)
	assert.True(t, access.MaxAge < 0 || !access.Expires.After(time.Now()), "access cookie must be expired")
}

func TestRefreshRotation_SyncsCookies(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/settings/":
			fmt.Fprint(w, `{"maintenance_mode":false}`)
		case "/token/refresh/":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "R1", body["refresh"])
			fmt.Fprint(w, `{"access":"T2","refresh":"R2"}`)
		case "/articles/":
			if r.Header.Get("Authorization") != "Bearer T2" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"detail":"token expired"}`)
				return
			}
			fmt.Fprint(w, `{"count":0,"results":[]}`)
		default:
			t.Errorf("unexpected backend path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sess-rot"})
	req.AddCookie(&http.Cookie{Name: CookieAccess, Value: "A1"})
	req.AddCookie(&http.Cookie{Name: CookieRefresh, Value: "R1"})

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "caller never sees the 401")

	access := cookieByName(resp, CookieAccess)
	refresh := cookieByName(resp, CookieRefresh)
	require.NotNil(t, access, "rotated access token must reach the browser")
	require.NotNil(t, refresh)
	assert.Equal(t, "T2", access.Value)
	assert.Equal(t, "R2", refresh.Value)
}

func TestSessionExpired_RedirectsToLogin(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token/refresh/":
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"refresh token expired"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"token expired"}`)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles?page=2", nil)
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sess-exp"})
	req.AddCookie(&http.Cookie{Name: CookieAccess, Value: "A1"})
	req.AddCookie(&http.Cookie{Name: CookieRefresh, Value: "R1"})

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.Contains(t, loc, "/login?redirect=")
	assert.Contains(t, loc, "articles")

	access := cookieByName(resp, CookieAccess)
	require.NotNil(t, access, "expired session must clear the token cookies")
	assert.Empty(t, access.Value)
}

func TestCompareCars_RequiresTwoSlugs(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/settings/" {
			fmt.Fprint(w, `{"maintenance_mode":false}`)
			return
		}
		t.Errorf("validation happens before the backend call, got %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cars/compare?slugs=only-one", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMaintenanceGate_BlocksPublicTraffic(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/settings/":
			fmt.Fprint(w, `{"site_name":"Fresh Motors","maintenance_mode":true}`)
		case "/articles/gone/":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected backend path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Admin routes stay open so the flag can be turned off.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/admin/articles/gone", nil)
	resp, err = app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMaintenanceGate_FailsOpen(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/settings/":
			w.WriteHeader(http.StatusInternalServerError)
		case "/articles/":
			fmt.Fprint(w, `{"count":0,"results":[]}`)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "settings outage must not take the site down")
}

func TestBeacon_AcceptsAndDefaults(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("beacons never reach the backend")
		w.WriteHeader(http.StatusInternalServerError)
	})

	body := `{"path":"/articles/ev-review","duration_ms":4200}`
	req := httptest.NewRequest(http.MethodPost, "/beacon", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sess-b"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
