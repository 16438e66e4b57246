package prestashop

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	infraconfig "github.com/erp/importer/internal/infrastructure/config"
)

// DefaultUserAgent identifies the importer to the remote shop
const DefaultUserAgent = "ERP-Catalog-Importer/1.0"

// maxResponseSize caps every response body read from the webservice (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ErrConfigInvalid wraps every configuration validation failure
var ErrConfigInvalid = errors.New("prestashop: invalid configuration")

// Config holds the webservice connection settings
type Config struct {
	// BaseURL is the shop URL, with or without the /api suffix
	BaseURL string `validate:"required,url"`
	// APIKey is the webservice key, sent as ws_key
	APIKey     string `validate:"required,min=8"`
	LanguageID string `validate:"required,numeric"`
	UserAgent  string

	DetailTimeout time.Duration `validate:"gt=0"`
	ListTimeout   time.Duration `validate:"gt=0"`
	ProbeTimeout  time.Duration `validate:"gt=0"`

	// RetryAttempts counts the first call, so 3 means two retries
	RetryAttempts  int           `validate:"gte=1,lte=10"`
	RetryDelay     time.Duration `validate:"gte=0"`
	RequestSpacing time.Duration `validate:"gte=0"`
	ErrorPause     time.Duration `validate:"gte=0"`

	MaxResponseBytes int64 `validate:"gte=0"`
}

// NewConfig creates a configuration with the default timeouts and pacing
func NewConfig(baseURL, apiKey string) *Config {
	return &Config{
		BaseURL:          baseURL,
		APIKey:           apiKey,
		LanguageID:       "1",
		UserAgent:        DefaultUserAgent,
		DetailTimeout:    15 * time.Second,
		ListTimeout:      30 * time.Second,
		ProbeTimeout:     10 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       2 * time.Second,
		RequestSpacing:   300 * time.Millisecond,
		ErrorPause:       time.Second,
		MaxResponseBytes: maxResponseSize,
	}
}

// ConfigFromSettings builds a client configuration from the application config
func ConfigFromSettings(s infraconfig.PrestaShopConfig) *Config {
	cfg := NewConfig(s.URL, s.APIKey)
	if s.LanguageID != "" {
		cfg.LanguageID = s.LanguageID
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	if s.DetailTimeout > 0 {
		cfg.DetailTimeout = s.DetailTimeout
	}
	if s.ListTimeout > 0 {
		cfg.ListTimeout = s.ListTimeout
	}
	if s.ProbeTimeout > 0 {
		cfg.ProbeTimeout = s.ProbeTimeout
	}
	if s.RetryAttempts > 0 {
		cfg.RetryAttempts = s.RetryAttempts
	}
	cfg.RetryDelay = s.RetryDelay
	cfg.RequestSpacing = s.RequestSpacing
	cfg.ErrorPause = s.ErrorPause
	return cfg
}

// Validate checks the configuration and fills optional defaults
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = maxResponseSize
	}
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// APIURL returns the normalised webservice root, always ending in /api
func (c *Config) APIURL() string {
	u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if !strings.HasSuffix(u, "/api") {
		u += "/api"
	}
	return u
}

// MaskedKey renders the API key as first8...last4 for diagnostics
func (c *Config) MaskedKey() string {
	return MaskKey(c.APIKey)
}

// MaskKey renders key as first8...last4, or "(too short)" for keys of 12 characters or fewer
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "(too short)"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
