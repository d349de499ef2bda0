package server

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/logging"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
)

// Environment variables read by LoadConfig.
const (
	EnvBaseURL        = "FIREFLY_III_BASE_URL"
	EnvToken          = "FIREFLY_III_PAT"
	EnvTools          = "FIREFLY_III_TOOLS"
	EnvPreset         = "FIREFLY_III_PRESET"
	EnvSpec           = "FIREFLY_III_SPEC"
	EnvCatalog        = "FIREFLY_III_CATALOG"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvRedisURL       = "REDIS_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvHTTPAddr       = "HTTP_ADDR"
	EnvMetricsEnabled = "METRICS_ENABLED"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvPollInterval   = "POLLING_INTERVAL"
	EnvDisablePolling = "DISABLE_POLLING"
)

// Request-level overrides of the execution context.
const (
	QueryToken    = "pat"
	QueryBaseURL  = "baseUrl"
	QueryTools    = "tools"
	QueryPreset   = "preset"
	HeaderBaseURL = "X-Firefly-III-Url"
)

// Config holds server configuration
type Config struct {
	BaseURL        string         `yaml:"base_url"`
	Token          string         `yaml:"token"`
	Tools          string         `yaml:"tools"`
	Preset         string         `yaml:"preset"`
	SpecSource     string         `yaml:"spec"`
	CatalogFile    string         `yaml:"catalog"`
	DatabaseURL    string         `yaml:"database_url"`
	RedisURL       string         `yaml:"redis_url"`
	HTTPAddr       string         `yaml:"http_addr"`
	BasePath       string         `yaml:"base_path"`
	MetricsEnabled bool           `yaml:"metrics_enabled"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	PollInterval   time.Duration  `yaml:"poll_interval"`
	DisablePolling bool           `yaml:"disable_polling"`
	Log            logging.Config `yaml:"log"`
}

// DefaultConfig returns the configuration used before any file, environment
// or flag is applied.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:       ":3000",
		BasePath:       "/mcp",
		RequestTimeout: 30 * time.Second,
		PollInterval:   30 * time.Second,
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadConfig applies defaults, then the YAML file at path (if any), then the
// environment. Flags are applied by the caller afterwards.
func LoadConfig(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, Wrap(err, ErrorTypeValidation, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, Wrap(err, ErrorTypeValidation, "failed to parse config file")
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	strs := map[string]*string{
		EnvBaseURL:     &c.BaseURL,
		EnvToken:       &c.Token,
		EnvTools:       &c.Tools,
		EnvPreset:      &c.Preset,
		EnvSpec:        &c.SpecSource,
		EnvCatalog:     &c.CatalogFile,
		EnvDatabaseURL: &c.DatabaseURL,
		EnvRedisURL:    &c.RedisURL,
		EnvLogLevel:    &c.Log.Level,
		EnvLogFormat:   &c.Log.Format,
		EnvHTTPAddr:    &c.HTTPAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvMetricsEnabled); ok && v != "" {
		enabled, err := cast.ToBoolE(v)
		if err != nil {
			return NewError(ErrorTypeValidation, "invalid "+EnvMetricsEnabled, err.Error())
		}
		c.MetricsEnabled = enabled
	}
	if v, ok := lookup(EnvRequestTimeout); ok && v != "" {
		timeout, err := cast.ToDurationE(v)
		if err != nil {
			return NewError(ErrorTypeValidation, "invalid "+EnvRequestTimeout, err.Error())
		}
		c.RequestTimeout = timeout
	}
	if v, ok := lookup(EnvPollInterval); ok && v != "" {
		seconds, err := cast.ToIntE(v)
		if err != nil || seconds <= 0 {
			return NewError(ErrorTypeValidation, "invalid "+EnvPollInterval, v)
		}
		c.PollInterval = time.Duration(seconds) * time.Second
	}
	if v, ok := lookup(EnvDisablePolling); ok && v != "" {
		disabled, err := cast.ToBoolE(v)
		if err != nil {
			return NewError(ErrorTypeValidation, "invalid "+EnvDisablePolling, err.Error())
		}
		c.DisablePolling = disabled
	}
	return nil
}

// DatabaseMode reports whether the catalog comes from the store.
func (c *Config) DatabaseMode() bool {
	return c.DatabaseURL != "" && c.SpecSource == "" && c.CatalogFile == ""
}

// PollingEnabled reports whether the store should be watched for changes.
func (c *Config) PollingEnabled() bool {
	return c.DatabaseMode() && !c.DisablePolling && c.PollInterval > 0
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SpecSource == "" && c.CatalogFile == "" && c.DatabaseURL == "" {
		return NewError(ErrorTypeValidation, "no tool source configured",
			"set "+EnvSpec+", "+EnvCatalog+" or "+EnvDatabaseURL)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewError(ErrorTypeValidation, "invalid base URL", c.BaseURL)
		}
	}
	if c.Preset != "" && !openapi2mcp.PresetExists(c.Preset) {
		return NewError(ErrorTypeValidation, "unknown preset", c.Preset)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return NewError(ErrorTypeValidation, "invalid log format", c.Log.Format)
	}
	if c.RequestTimeout < 0 {
		return NewError(ErrorTypeValidation, "request timeout must not be negative", c.RequestTimeout.String())
	}
	return nil
}

// LogConfiguration logs the current configuration
func (c *Config) LogConfiguration(logger *zap.Logger) {
	logger.Info("configuration",
		zap.String("base_url", c.BaseURL),
		zap.Bool("token_set", c.Token != ""),
		zap.String("tools", c.Tools),
		zap.String("preset", c.Preset),
		zap.String("spec", c.SpecSource),
		zap.String("catalog", c.CatalogFile),
		zap.String("database_url", maskSensitive(c.DatabaseURL)),
		zap.String("redis_url", maskSensitive(c.RedisURL)),
		zap.String("http_addr", c.HTTPAddr),
		zap.Bool("metrics_enabled", c.MetricsEnabled),
		zap.Duration("request_timeout", c.RequestTimeout),
		zap.Bool("polling", c.PollingEnabled()),
	)
}

// maskSensitive masks sensitive parts of URLs for logging
func maskSensitive(url string) string {
	if url == "" {
		return ""
	}
	if len(url) > 20 {
		return url[:8] + "***" + url[len(url)-8:]
	}
	return "***"
}

// EnabledTags resolves the configured tool tags: an explicit tool list wins
// over a preset, and neither means the default preset.
func (c *Config) EnabledTags(logger *zap.Logger) []string {
	return resolveTags(c.Tools, c.Preset, logger)
}

func resolveTags(tools, preset string, logger *zap.Logger) []string {
	if tags := openapi2mcp.ParseTags(tools); len(tags) > 0 {
		return tags
	}
	if preset != "" {
		return openapi2mcp.PresetTags(preset, logger)
	}
	return openapi2mcp.PresetTags(openapi2mcp.DefaultPreset, logger)
}

// ResolveExecutionContext derives the execution context of an HTTP request.
// Query parameters win over headers, which win over the configuration.
func (c *Config) ResolveExecutionContext(r *http.Request, logger *zap.Logger) auth.ExecutionContext {
	q := r.URL.Query()

	token := q.Get(QueryToken)
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		token = c.Token
	}

	baseURL := q.Get(QueryBaseURL)
	if baseURL == "" {
		baseURL = r.Header.Get(HeaderBaseURL)
	}
	if baseURL == "" {
		baseURL = c.BaseURL
	}

	var tags []string
	switch {
	case q.Get(QueryTools) != "" || q.Get(QueryPreset) != "":
		tags = resolveTags(q.Get(QueryTools), q.Get(QueryPreset), logger)
	default:
		tags = c.EnabledTags(logger)
	}

	return auth.ExecutionContext{BaseURL: baseURL, Token: token, EnabledTags: tags}
}

// ResolveLocalExecutionContext derives the execution context of a local
// session. Flag values win over the configuration.
func (c *Config) ResolveLocalExecutionContext(toolsFlag, presetFlag string, logger *zap.Logger) auth.ExecutionContext {
	tags := c.EnabledTags(logger)
	if toolsFlag != "" || presetFlag != "" {
		tags = resolveTags(toolsFlag, presetFlag, logger)
	}
	return auth.ExecutionContext{BaseURL: c.BaseURL, Token: c.Token, EnabledTags: tags}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// MCPURL returns the streamable HTTP endpoint URL for log lines.
func (c *Config) MCPURL() string {
	return openapi2mcp.GetStreamableHTTPURL(c.HTTPAddr, c.BasePath)
}
