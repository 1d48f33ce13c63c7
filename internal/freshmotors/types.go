package freshmotors

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientConfig holds backend connection settings, resolved at startup
// (optionally from the secrets provider).
type ClientConfig struct {
	BaseURL    string // e.g. "https://api.freshmotors.example"
	ServiceKey string // site-level API key sent on every request
}

// Article is a published news article.
type Article struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Body        string    `json:"body,omitempty"`
	CoverImage  string    `json:"cover_image"`
	Category    string    `json:"category"`
	Author      string    `json:"author"`
	Published   bool      `json:"published"`
	ViewCount   int64     `json:"view_count"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArticleInput is the create/update payload for admin article operations.
type ArticleInput struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt"`
	Body       string `json:"body"`
	CoverImage string `json:"cover_image"`
	Category   string `json:"category"`
	Published  bool   `json:"published"`
}

// ArticleQuery filters and paginates article listings.
type ArticleQuery struct {
	Page     int
	PageSize int
	Category string
	Search   string
}

// ArticleList is the paginated listing envelope returned by the backend.
type ArticleList struct {
	Count   int64     `json:"count"`
	Next    string    `json:"next"`
	Prev    string    `json:"previous"`
	Results []Article `json:"results"`
}

// Category groups articles.
type Category struct {
	ID    int64  `json:"id"`
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Count int64  `json:"article_count"`
}

// Ad is a banner placement served on public pages.
type Ad struct {
	ID        int64     `json:"id"`
	Placement string    `json:"placement"` // e.g. "home_top", "article_side"
	ImageURL  string    `json:"image_url"`
	TargetURL string    `json:"target_url"`
	Active    bool      `json:"active"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// CarSpec is a vehicle specification sheet used by the comparison pages.
// Prices are decimals to survive currency conversion without float drift.
type CarSpec struct {
	ID           int64           `json:"id"`
	Slug         string          `json:"slug"`
	Make         string          `json:"make"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Currency     string          `json:"currency"`
	EngineCC     int             `json:"engine_cc"`
	PowerHP      int             `json:"power_hp"`
	TorqueNM     int             `json:"torque_nm"`
	FuelType     string          `json:"fuel_type"`
	Transmission string          `json:"transmission"`
	TopSpeedKMH  int             `json:"top_speed_kmh"`
	ZeroToTonSec decimal.Decimal `json:"zero_to_hundred_sec"`
}

// SiteSettings is the site-wide configuration blob (admin settings screen).
type SiteSettings struct {
	SiteName        string `json:"site_name"`
	MaintenanceMode bool   `json:"maintenance_mode"`
	DefaultCurrency string `json:"default_currency"`
	AdsEnabled      bool   `json:"ads_enabled"`
}

// loginRequest is the credentials payload for POST /token/.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse mirrors the refresh response shape: a fresh token pair.
type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// apiError is the backend's failure body.
type apiError struct {
	Detail string `json:"detail"`
}
