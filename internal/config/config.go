package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"adaptive-reasoner/internal/models"
)

const (
	// EnvConfigFile names the environment variable consulted when no --config flag is given.
	EnvConfigFile = "AR_CONFIG_FILE"
	// DefaultConfigFile is used when neither the flag nor EnvConfigFile is set.
	DefaultConfigFile = "./config.yaml"

	defaultPort           = 8080
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 0
	defaultIdleTimeout    = 120 * time.Second
	defaultMaxBodyBytes   = 4 << 20
	defaultConnectTimeout = 30 * time.Second
	defaultUpstreamRead   = 60 * time.Second
	defaultMaxIdleConns   = 50
	defaultQueueCapacity  = 100
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultMetricsPath    = "/metrics"
	defaultMetricsNS      = "adaptive_reasoner"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Upstream  UpstreamConfig         `yaml:"upstream"`
	Reasoning ReasoningConfig        `yaml:"reasoning"`
	Logging   LoggingConfig          `yaml:"logging"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Models    map[string]ModelConfig `yaml:"models"`
	Aliases   map[string]string      `yaml:"aliases"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// UpstreamConfig tunes the shared HTTP transport used for every upstream call.
type UpstreamConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxIdleConns   int           `yaml:"max_idle_conns"`
}

// ReasoningConfig holds orchestration defaults shared by all routes.
type ReasoningConfig struct {
	RenderingMode    models.RenderingMode `yaml:"rendering_mode"`
	QueueCapacity    int                  `yaml:"queue_capacity"`
	DefaultMaxTokens int                  `yaml:"default_max_tokens"`
}

// LoggingConfig controls the global zerolog logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// ModelConfig describes one logical model and the upstream it is served by.
// APIKey names an environment variable; Load replaces it with that variable's value.
type ModelConfig struct {
	ModelName       string               `yaml:"model_name"`
	APIURL          string               `yaml:"api_url"`
	APIKey          string               `yaml:"api_key"`
	ReasoningBudget int                  `yaml:"reasoning_budget"`
	RenderingMode   models.RenderingMode `yaml:"rendering_mode"`
	Extra           map[string]any       `yaml:"extra"`
}

// ResolvePath picks the configuration file: the explicit flag value, then EnvConfigFile,
// then DefaultConfigFile.
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigFile)); env != "" {
		return env
	}
	return DefaultConfigFile
}

// Load reads YAML configuration from disk, resolves secrets and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, models.NewConfigError("resolve config path", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, models.NewConfigError(fmt.Sprintf("read config file %q", absPath), err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, models.NewConfigError(fmt.Sprintf("load config file %q", absPath), err)
	}

	cfg.ResolveSecrets(os.LookupEnv)
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates. Secrets are left unresolved.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Upstream.ConnectTimeout == 0 {
		c.Upstream.ConnectTimeout = defaultConnectTimeout
	}
	if c.Upstream.ReadTimeout == 0 {
		c.Upstream.ReadTimeout = defaultUpstreamRead
	}
	if c.Upstream.MaxIdleConns == 0 {
		c.Upstream.MaxIdleConns = defaultMaxIdleConns
	}
	if c.Reasoning.RenderingMode == "" {
		c.Reasoning.RenderingMode = models.RenderInlineMarkers
	}
	if c.Reasoning.QueueCapacity == 0 {
		c.Reasoning.QueueCapacity = defaultQueueCapacity
	}
	if c.Reasoning.DefaultMaxTokens == 0 {
		c.Reasoning.DefaultMaxTokens = models.DefaultMaxTokens
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaultMetricsNS
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	if c.Upstream.ConnectTimeout < 0 || c.Upstream.ReadTimeout < 0 {
		return fmt.Errorf("upstream timeouts must not be negative")
	}
	if !c.Reasoning.RenderingMode.Valid() {
		return fmt.Errorf("reasoning.rendering_mode %q must be one of %q or %q",
			c.Reasoning.RenderingMode, models.RenderInlineMarkers, models.RenderSeparateField)
	}
	if c.Reasoning.QueueCapacity < 0 {
		return fmt.Errorf("reasoning.queue_capacity must not be negative")
	}
	if c.Reasoning.DefaultMaxTokens < 0 {
		return fmt.Errorf("reasoning.default_max_tokens must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be one of \"console\" or \"json\"", c.Logging.Format)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	for name, model := range c.Models {
		if err := validateModel(name, model); err != nil {
			return err
		}
	}

	for alias, target := range c.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("alias name must not be empty")
		}
		if _, exists := c.Models[alias]; exists {
			return fmt.Errorf("alias %q conflicts with existing model", alias)
		}
		if _, ok := c.Models[target]; !ok {
			return fmt.Errorf("alias %q references unknown model %q", alias, target)
		}
	}

	return nil
}

func validateModel(name string, model ModelConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("model name must not be empty")
	}
	if strings.TrimSpace(model.ModelName) == "" {
		return fmt.Errorf("model %s: model_name must be provided", name)
	}
	if strings.TrimSpace(model.APIURL) == "" {
		return fmt.Errorf("model %s: api_url must be provided", name)
	}
	if model.ReasoningBudget <= 0 {
		return fmt.Errorf("model %s: reasoning_budget must be positive, got %d", name, model.ReasoningBudget)
	}
	if model.RenderingMode != "" && !model.RenderingMode.Valid() {
		return fmt.Errorf("model %s: rendering_mode %q is not supported", name, model.RenderingMode)
	}
	for key := range model.Extra {
		if models.IsReservedField(key) {
			return fmt.Errorf("model %s: extra field %q is controlled by the gateway", name, key)
		}
	}
	if _, err := encodeExtra(model.Extra); err != nil {
		return fmt.Errorf("model %s: %w", name, err)
	}
	return nil
}

// ResolveSecrets replaces every api_key with the value of the environment variable it
// names. lookup is normally os.LookupEnv.
func (c *Config) ResolveSecrets(lookup func(string) (string, bool)) {
	for name, model := range c.Models {
		envName := strings.TrimSpace(model.APIKey)
		value, ok := "", false
		if envName != "" {
			value, ok = lookup(envName)
		}
		if !ok {
			log.Warn().Str("model", name).Str("env", envName).Msg("api key environment variable is not set")
		}
		model.APIKey = value
		c.Models[name] = model
	}
}

// ModelNames returns the configured logical model names in sorted order.
func (c Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route converts a configured model into the route used by the orchestrators.
func (c Config) Route(name string) (models.Route, error) {
	model, ok := c.Models[name]
	if !ok {
		return models.Route{}, fmt.Errorf("model %q is not configured", name)
	}
	extra, err := encodeExtra(model.Extra)
	if err != nil {
		return models.Route{}, fmt.Errorf("model %s: %w", name, err)
	}
	mode := model.RenderingMode
	if mode == "" {
		mode = c.Reasoning.RenderingMode
	}
	return models.Route{
		Name:            name,
		ModelName:       model.ModelName,
		APIURL:          strings.TrimRight(model.APIURL, "/"),
		APIKey:          model.APIKey,
		ReasoningBudget: model.ReasoningBudget,
		RenderingMode:   mode,
		Extra:           extra,
	}, nil
}

func encodeExtra(extra map[string]any) (map[string]json.RawMessage, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for key, value := range extra {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("extra field %q is not JSON-encodable: %w", key, err)
		}
		out[key] = raw
	}
	return out, nil
}
