// Package conf loads and validates application settings.
package conf

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/shoppinglist/internal/errors"
)

// Placeholder sentinels written by the config template. A value equal to its
// sentinel means the user never filled it in.
const (
	PlaceholderSupabaseURL     = "YOUR_SUPABASE_URL_HERE"
	PlaceholderSupabaseAnonKey = "YOUR_SUPABASE_ANON_KEY_HERE"
)

// DefaultConfigFile is the config path used when none is given. It must stay
// out of version control.
const DefaultConfigFile = "config.yaml"

// Storage backends for the offline cache.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var (
	ErrConfigNotFound = errors.NewStd("config file not found")
	ErrNotConfigured  = errors.NewStd("value not configured")
	ErrInvalidValue   = errors.NewStd("invalid value")
)

// Settings is the full application configuration.
type Settings struct {
	Supabase  SupabaseSettings  `mapstructure:"supabase" yaml:"supabase"`
	Build     BuildSettings     `mapstructure:"build" yaml:"build"`
	Cache     CacheSettings     `mapstructure:"cache" yaml:"cache"`
	Server    ServerSettings    `mapstructure:"server" yaml:"server"`
	Proxy     ProxySettings     `mapstructure:"proxy" yaml:"proxy"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
}

// SupabaseSettings is the configuration record injected into the page.
type SupabaseSettings struct {
	URL     string `mapstructure:"url" yaml:"url"`
	AnonKey string `mapstructure:"anon_key" yaml:"anon_key"`
}

// BuildSettings locates the page template and the generated page.
type BuildSettings struct {
	Template string `mapstructure:"template" yaml:"template"`
	Output   string `mapstructure:"output" yaml:"output"`
}

// CacheSettings drives both the Go offline proxy and the rendered service worker.
type CacheSettings struct {
	Version       string   `mapstructure:"version" yaml:"version"`
	Assets        []string `mapstructure:"assets" yaml:"assets"`
	Fallback      string   `mapstructure:"fallback" yaml:"fallback"`
	BackendDomain string   `mapstructure:"backend_domain" yaml:"backend_domain"`
	Backend       string   `mapstructure:"backend" yaml:"backend"`
	Path          string   `mapstructure:"path" yaml:"path"`
	InstallRetry  Duration `mapstructure:"install_retry" yaml:"install_retry"`
}

type ServerSettings struct {
	Listen          string   `mapstructure:"listen" yaml:"listen"`
	SiteDir         string   `mapstructure:"site_dir" yaml:"site_dir"`
	ReadTimeout     Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type ProxySettings struct {
	Listen   string `mapstructure:"listen" yaml:"listen"`
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
}

type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DefaultAssets is the manifest precached on install.
var DefaultAssets = []string{
	"./",
	"./index.html",
	"./manifest.webmanifest",
	"./icons/icon-192.png",
	"./icons/icon-512.png",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")

	v.SetDefault("build.template", "site/index.template.html")
	v.SetDefault("build.output", "site/index.html")

	v.SetDefault("cache.version", "shoppinglist-v1")
	v.SetDefault("cache.assets", DefaultAssets)
	v.SetDefault("cache.fallback", "./index.html")
	v.SetDefault("cache.backend_domain", ".supabase.co")
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.path", "data/offline.db")
	v.SetDefault("cache.install_retry", "30s")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.site_dir", "site")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 50.0)

	v.SetDefault("proxy.listen", "127.0.0.1:8081")
	v.SetDefault("proxy.upstream", "http://localhost:8080/")

	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
}

// Load reads settings from defaults, the YAML file at path and SHOPPINGLIST_*
// environment variables. With requireFile set, a missing file is an error
// wrapping ErrConfigNotFound.
func Load(path string, requireFile bool) (*Settings, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SHOPPINGLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Newf("read config %s: %w", path, err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	case os.IsNotExist(statErr) && requireFile:
		return nil, errors.Newf("%s: %w", path, ErrConfigNotFound).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("path", path).
			Build()
	case !os.IsNotExist(statErr):
		return nil, errors.Newf("stat config %s: %w", path, statErr).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.Newf("decode config: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &s, nil
}

// Template returns the settings written by `shoppinglist init`, with the
// Supabase values left as placeholders.
func Template() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	// Defaults always decode; a failure here is a programming error.
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		panic(fmt.Sprintf("conf: decode defaults: %v", err))
	}
	s.Supabase = SupabaseSettings{
		URL:     PlaceholderSupabaseURL,
		AnonKey: PlaceholderSupabaseAnonKey,
	}
	return &s
}

var anonKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate reports whether both Supabase values are filled in and safe to
// inject into a JavaScript string literal.
func (s SupabaseSettings) Validate() error {
	if s.URL == "" || s.URL == PlaceholderSupabaseURL {
		return notConfigured("supabase.url")
	}
	if s.AnonKey == "" || s.AnonKey == PlaceholderSupabaseAnonKey {
		return notConfigured("supabase.anon_key")
	}

	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return invalid("supabase.url", "must be an absolute http(s) URL")
	}
	if strings.ContainsAny(s.URL, "\"'`\\\n\r<>{}") {
		return invalid("supabase.url", "contains characters not allowed in a script literal")
	}
	if !anonKeyPattern.MatchString(s.AnonKey) {
		return invalid("supabase.anon_key", "may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// Validate checks the offline cache settings.
func (c CacheSettings) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return notConfigured("cache.version")
	}
	if len(c.Assets) == 0 {
		return notConfigured("cache.assets")
	}
	if c.Fallback == "" {
		return notConfigured("cache.fallback")
	}
	if !slices.Contains(c.Assets, c.Fallback) {
		return invalid("cache.fallback", "must be one of cache.assets")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Path == "" {
			return notConfigured("cache.path")
		}
	default:
		return invalid("cache.backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	return nil
}

// RetryInterval returns the install retry interval, never below one second.
func (c CacheSettings) RetryInterval() time.Duration {
	if d := c.InstallRetry.Std(); d >= time.Second {
		return d
	}
	return time.Second
}

func notConfigured(key string) error {
	return errors.Newf("%s: %w", key, ErrNotConfigured).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}

func invalid(key, reason string) error {
	return errors.Newf("%s %s: %w", key, reason, ErrInvalidValue).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}
