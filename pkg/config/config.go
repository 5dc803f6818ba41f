package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWaitlistAPIURL  = "http://localhost:5000"
	DefaultCountriesAPIURL = "https://restcountries.com/v3.1/all?fields=name,cca2,cca3"
	DefaultViralLoopsURL   = "https://app.viral-loops.com"
	DefaultCampaignID      = "nGVsE6bNtXHGQlXj1ykr3BNLwJE"
	DefaultHubspotCookie   = "hubspotutk"
)

// Config holds all application configuration values
type Config struct {
	Port              string           `yaml:"port"`
	WaitlistAPIURL    string           `yaml:"waitlist_api_url"`
	CountriesAPIURL   string           `yaml:"countries_api_url"`
	HubspotCookieName string           `yaml:"hubspot_cookie_name"`
	ViralLoops        ViralLoopsConfig `yaml:"viral_loops"`
	AllowedOrigins    []string         `yaml:"allowed_origins"`
	LogLevel          string           `yaml:"log_level"`

	// Bounds on outbound calls. The waitlist and country calls share
	// RequestTimeout, the referral identify call uses ReferralTimeout.
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReferralTimeout time.Duration `yaml:"referral_timeout"`

	// Form lifecycle after a successful submission
	CelebrationDelay time.Duration `yaml:"celebration_delay"`
	FieldResetDelay  time.Duration `yaml:"field_reset_delay"`
	StateResetDelay  time.Duration `yaml:"state_reset_delay"`
	SessionTTL       time.Duration `yaml:"session_ttl"`

	// Guards on anonymous session creation. The rate is per client IP.
	MaxSessions      int     `yaml:"max_sessions"`
	SessionRateLimit float64 `yaml:"session_rate_limit"`
	SessionRateBurst int     `yaml:"session_rate_burst"`
}

// ViralLoopsConfig configures the referral campaign client
type ViralLoopsConfig struct {
	APIURL     string `yaml:"api_url"`
	CampaignID string `yaml:"campaign_id"`
	APIToken   string `yaml:"api_token"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:              "8080",
		WaitlistAPIURL:    DefaultWaitlistAPIURL,
		CountriesAPIURL:   DefaultCountriesAPIURL,
		HubspotCookieName: DefaultHubspotCookie,
		ViralLoops: ViralLoopsConfig{
			APIURL:     DefaultViralLoopsURL,
			CampaignID: DefaultCampaignID,
		},
		AllowedOrigins:   []string{"*"},
		LogLevel:         "info",
		RequestTimeout:   10 * time.Second,
		ReferralTimeout:  5 * time.Second,
		CelebrationDelay: 100 * time.Millisecond,
		FieldResetDelay:  2 * time.Second,
		StateResetDelay:  5 * time.Second,
		SessionTTL:       30 * time.Minute,
		MaxSessions:      10000,
		SessionRateLimit: 0.2,
		SessionRateBurst: 10,
	}
}

// LoadConfig reads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML file on top of the defaults, then applies
// environment overrides. An empty path behaves like LoadConfig.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return LoadConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that the settings are usable
func (c *Config) Validate() error {
	if c.WaitlistAPIURL == "" {
		return fmt.Errorf("waitlist API URL is required")
	}
	if c.CountriesAPIURL == "" {
		return fmt.Errorf("countries API URL is required")
	}
	if c.StateResetDelay < c.FieldResetDelay {
		return fmt.Errorf("state reset delay (%s) must not be shorter than field reset delay (%s)",
			c.StateResetDelay, c.FieldResetDelay)
	}
	if c.RequestTimeout <= 0 || c.ReferralTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative")
	}
	if c.SessionRateLimit <= 0 || c.SessionRateBurst <= 0 {
		return fmt.Errorf("session rate limit and burst must be positive")
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	setString(&c.Port, "PORT")
	// NEXT_PUBLIC_API_URL is what the site build uses for the same endpoint
	setString(&c.WaitlistAPIURL, "NEXT_PUBLIC_API_URL")
	setString(&c.WaitlistAPIURL, "WAITLIST_API_URL")
	setString(&c.CountriesAPIURL, "COUNTRIES_API_URL")
	setString(&c.HubspotCookieName, "HUBSPOT_COOKIE_NAME")
	setString(&c.ViralLoops.APIURL, "VIRAL_LOOPS_API_URL")
	setString(&c.ViralLoops.CampaignID, "VIRAL_LOOPS_CAMPAIGN_ID")
	setString(&c.ViralLoops.APIToken, "VIRAL_LOOPS_API_TOKEN")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"REFERRAL_TIMEOUT", &c.ReferralTimeout},
		{"CELEBRATION_DELAY", &c.CelebrationDelay},
		{"FIELD_RESET_DELAY", &c.FieldResetDelay},
		{"STATE_RESET_DELAY", &c.StateResetDelay},
		{"SESSION_TTL", &c.SessionTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_SESSIONS %q: %w", v, err)
		}
		c.MaxSessions = n
	}
	if v := os.Getenv("SESSION_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SESSION_RATE_LIMIT %q: %w", v, err)
		}
		c.SessionRateLimit = f
	}
	if v := os.Getenv("SESSION_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_RATE_BURST %q: %w", v, err)
		}
		c.SessionRateBurst = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
