package freshmotors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/httpclient"
	"github.com/fresh-motors/gateway/internal/rate"
)

// Client wraps low-level HTTP communication with the Fresh Motors backend.
// Session credentials travel through the request context (auth.WithSession),
// so a single Client instance serves every browser session.
type Client struct {
	logger *zap.Logger
	cfg    ClientConfig
	exec   *httpclient.Executor

	// credExec bypasses the auth transport. The credential exchange must not
	// run 401 recovery: a rejected password is not an access-token failure.
	credExec *httpclient.Executor
}

// NewClient constructs the backend client. httpClient should carry an
// auth.Transport so 401 recovery is transparent to every method here.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, cfg ClientConfig) *Client {
	errorHandler := func(status int, body []byte) error {
		var errResp apiError
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("freshmotors.client_error",
			zap.Int("status", status),
			zap.String("detail", errResp.Detail))

		msg := errResp.Detail
		if msg == "" {
			msg = string(body)
		}
		return fmt.Errorf("backend returned %d: %s", status, msg)
	}
	plain := &http.Client{Timeout: httpClient.Timeout}
	return &Client{
		logger:   logger,
		cfg:      cfg,
		exec:     httpclient.New(logger, rateMgr, httpClient, 2, "freshmotors", errorHandler),
		credExec: httpclient.New(logger, rateMgr, plain, 2, "freshmotors", errorHandler),
	}
}

// Login exchanges credentials for a token pair.
// POST /token/
func (c *Client) Login(ctx context.Context, email, password string) (auth.Tokens, error) {
	var resp loginResponse
	if err := c.doJSONVia(c.credExec, ctx, http.MethodPost, "/token/", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return auth.Tokens{}, err
	}
	if resp.Access == "" || resp.Refresh == "" {
		return auth.Tokens{}, fmt.Errorf("login response missing tokens")
	}
	return auth.Tokens{Access: resp.Access, Refresh: resp.Refresh}, nil
}

// ListArticles returns a page of articles.
// GET /articles/
func (c *Client) ListArticles(ctx context.Context, q ArticleQuery) (*ArticleList, error) {
	vals := url.Values{}
	if q.Page > 0 {
		vals.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		vals.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Category != "" {
		vals.Set("category", q.Category)
	}
	if q.Search != "" {
		vals.Set("search", q.Search)
	}

	path := "/articles/"
	if enc := vals.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp ArticleList
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetArticle retrieves one article by slug.
// GET /articles/{slug}/
func (c *Client) GetArticle(ctx context.Context, slug string) (*Article, error) {
	var resp Article
	if err := c.getJSON(ctx, "/articles/"+url.PathEscape(slug)+"/", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateArticle creates an article (admin).
// POST /articles/
func (c *Client) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	var resp Article
	if err := c.postJSON(ctx, "/articles/", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateArticle updates an article (admin).
// PUT /articles/{slug}/
func (c *Client) UpdateArticle(ctx context.Context, slug string, in ArticleInput) (*Article, error) {
	var resp Article
	if err := c.doJSON(ctx, http.MethodPut, "/articles/"+url.PathEscape(slug)+"/", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteArticle removes an article (admin).
// DELETE /articles/{slug}/
func (c *Client) DeleteArticle(ctx context.Context, slug string) error {
	return c.doJSON(ctx, http.MethodDelete, "/articles/"+url.PathEscape(slug)+"/", nil, nil)
}

// RecordView bumps an article's view counter.
// POST /articles/{slug}/views/
func (c *Client) RecordView(ctx context.Context, slug string) error {
	return c.postJSON(ctx, "/articles/"+url.PathEscape(slug)+"/views/", nil, nil)
}

// ListCategories returns all categories.
// GET /categories/
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var resp []Category
	if err := c.getJSON(ctx, "/categories/", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListAds returns active ads, optionally filtered by placement.
// GET /ads/
func (c *Client) ListAds(ctx context.Context, placement string) ([]Ad, error) {
	path := "/ads/"
	if placement != "" {
		path += "?placement=" + url.QueryEscape(placement)
	}
	var resp []Ad
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetCarSpec retrieves one specification sheet by slug.
// GET /cars/{slug}/
func (c *Client) GetCarSpec(ctx context.Context, slug string) (*CarSpec, error) {
	var resp CarSpec
	if err := c.getJSON(ctx, "/cars/"+url.PathEscape(slug)+"/", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompareCarSpecs retrieves several spec sheets in one call.
// GET /cars/compare/?slugs=a,b,c
func (c *Client) CompareCarSpecs(ctx context.Context, slugs []string) ([]CarSpec, error) {
	vals := url.Values{}
	for _, s := range slugs {
		vals.Add("slugs", s)
	}
	var resp []CarSpec
	if err := c.getJSON(ctx, "/cars/compare/?"+vals.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSettings fetches the site-wide settings blob.
// GET /settings/
func (c *Client) GetSettings(ctx context.Context) (*SiteSettings, error) {
	var resp SiteSettings
	if err := c.getJSON(ctx, "/settings/", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// getJSON performs a GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	return c.exec.DoJSON(ctx, req, rateKey(path), out)
}

// postJSON performs a POST request with an optional JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// doJSON performs an arbitrary-method request with an optional JSON body.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	return c.doJSONVia(c.exec, ctx, method, path, body, out)
}

func (c *Client) doJSONVia(exec *httpclient.Executor, ctx context.Context, method, path string, body any, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(data))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return err
	}
	c.setHeaders(req)

	return exec.DoJSON(ctx, req, rateKey(path), out)
}

// setHeaders sets the headers required on every backend request. The bearer
// token is not set here; auth.Transport owns the Authorization header.
func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.ServiceKey != "" {
		req.Header.Set("X-Service-Key", c.cfg.ServiceKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// rateKey buckets the limiter per top-level route group.
func rateKey(path string) string {
	for i := 1; i < len(path); i++ {
		if path[i] == '/' || path[i] == '?' {
			return path[1:i]
		}
	}
	return path
}
