package spacetraveling

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/eringen/spacetraveling/posts"
)

// SiteConfig holds all configuration for a spacetraveling site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "spacetraveling")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Site description for RSS and meta tags
	Locale      string `yaml:"locale"`      // Date locale (default "pt-BR")
	TimeZone    string `yaml:"time_zone"`   // IANA zone used to pick the calendar day (default "UTC")

	Addr         string `yaml:"addr"`          // Listen address (default ":3000")
	DatabasePath string `yaml:"database_path"` // SQLite snapshot store (default "data/spacetraveling.db")

	APIEndpoint  string `yaml:"api_endpoint"`  // Required: content API, e.g. https://repo.cdn.prismic.io/api/v2
	AccessToken  string `yaml:"access_token"`  // Content API token, if the repository is private
	DocumentType string `yaml:"document_type"` // Custom type listed on the page (default "posts")
	PageSize     int    `yaml:"page_size"`     // Posts per page (default 1)
	Orderings    string `yaml:"orderings"`     // Optional API orderings expression
	DedupeUIDs   bool   `yaml:"dedupe_uids"`   // Drop already displayed uids when merging pages

	SessionSecret string `yaml:"session_secret"` // Required for serve: cookie signing secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS

	PageCacheTTL       time.Duration `yaml:"page_cache_ttl"`      // Initial page cache TTL (default 5min)
	RevalidateInterval time.Duration `yaml:"revalidate_interval"` // Background refresh period (default 1h, negative disables)
	SessionTTL         time.Duration `yaml:"session_ttl"`         // Idle visitor pagination state lifetime (default 30min)
	MaxSessions        int           `yaml:"max_sessions"`        // Visitor pagination states kept in memory (default 10000)
	RequestTimeout     time.Duration `yaml:"request_timeout"`     // Content API timeout (default 10s)
	LoadMoreLimit      int           `yaml:"load_more_limit"`     // Load-more requests per IP per minute (default 30)
	SnapshotRetention  int           `yaml:"snapshot_retention"`  // Snapshots kept per document type (default 10)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimSuffix(c.URL, "/")
	if c.Locale == "" {
		c.Locale = posts.DefaultLocale
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/spacetraveling.db"
	}
	if c.DocumentType == "" {
		c.DocumentType = "posts"
	}
	if c.PageSize == 0 {
		c.PageSize = 1
	}
	if c.PageCacheTTL == 0 {
		c.PageCacheTTL = 5 * time.Minute
	}
	if c.RevalidateInterval == 0 {
		c.RevalidateInterval = time.Hour
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.LoadMoreLimit == 0 {
		c.LoadMoreLimit = 30
	}
	if c.SnapshotRetention == 0 {
		c.SnapshotRetention = 10
	}
}

// Validate reports configuration that cannot work.
func (c *SiteConfig) Validate() error {
	var errs []error
	if c.APIEndpoint == "" {
		errs = append(errs, errors.New("APIEndpoint is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, ErrInvalidPageSize)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time zone %q: %w", c.TimeZone, err))
	}
	if c.MaxSessions < 0 {
		errs = append(errs, errors.New("MaxSessions cannot be negative"))
	}
	if c.LoadMoreLimit < 0 {
		errs = append(errs, errors.New("LoadMoreLimit cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("spacetraveling: invalid config: %w", err)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *SiteConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfig builds a SiteConfig from an optional YAML file, a .env file in
// the working directory and the process environment, in increasing order of
// precedence. ${VAR} references in the YAML file are expanded.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("spacetraveling: load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("spacetraveling: read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("spacetraveling: parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func applyEnv(c *SiteConfig) error {
	c.Name = EnvOr("SITE_NAME", c.Name)
	c.URL = EnvOr("SITE_URL", c.URL)
	c.Description = EnvOr("SITE_DESCRIPTION", c.Description)
	c.Locale = EnvOr("LOCALE", c.Locale)
	c.TimeZone = EnvOr("TIME_ZONE", c.TimeZone)
	c.Addr = EnvOr("ADDR", c.Addr)
	c.DatabasePath = EnvOr("DATABASE_PATH", c.DatabasePath)
	c.APIEndpoint = EnvOr("PRISMIC_API_ENDPOINT", c.APIEndpoint)
	c.AccessToken = EnvOr("PRISMIC_ACCESS_TOKEN", c.AccessToken)
	c.DocumentType = EnvOr("DOCUMENT_TYPE", c.DocumentType)
	c.Orderings = EnvOr("ORDERINGS", c.Orderings)
	c.SessionSecret = EnvOr("SESSION_SECRET", c.SessionSecret)

	var errs []error
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PAGE_SIZE: %w", err))
		}
		c.PageSize = n
	}
	if v := os.Getenv("LOAD_MORE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOAD_MORE_LIMIT: %w", err))
		}
		c.LoadMoreLimit = n
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_SESSIONS: %w", err))
		}
		c.MaxSessions = n
	}
	if v := os.Getenv("DEDUPE_UIDS"); v != "" {
		c.DedupeUIDs = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		c.CookieSecure = strings.EqualFold(v, "true")
	}
	for key, dst := range map[string]*time.Duration{
		"PAGE_CACHE_TTL":      &c.PageCacheTTL,
		"REVALIDATE_INTERVAL": &c.RevalidateInterval,
		"SESSION_TTL":         &c.SessionTTL,
		"REQUEST_TIMEOUT":     &c.RequestTimeout,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		*dst = d
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("spacetraveling: environment: %w", err)
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir serves /public from dir instead of the embedded assets.
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithContentSource replaces the Prismic client, e.g. with a fake in tests.
func WithContentSource(src ContentSource) Option {
	return func(a *App) {
		a.source = src
	}
}

// WithHTTPClient sets the HTTP client used for the content API.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) {
		a.httpClient = hc
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.Logger = l
		}
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}

// WithViews replaces the default views.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}
