// ABOUTME: Configuration loading and parsing for teams-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultPort                    = 8000
	DefaultBotDisplayName          = "bot de Teams"
	DefaultBotReply                = "Hola, soy tu bot de Teams."
	DefaultProactiveMessage        = "Hola, este es un mensaje proactivo."
	DefaultEnv                     = "prod"
	DefaultControllerTimeout       = 10 * time.Second
	DefaultDedupeTTL               = 5 * time.Minute
	DefaultDedupeMaxEntries        = 10_000
	DefaultDeliveryLogDatabasePath = ":memory:"
)

// Config represents the complete teams-gateway configuration
type Config struct {
	Env        string           `yaml:"env" toml:"env"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Bot        BotConfig        `yaml:"bot" toml:"bot"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Controller ControllerConfig `yaml:"controller" toml:"controller"`
	Registry   RegistryConfig   `yaml:"registry" toml:"registry"`
	Dedupe     DedupeConfig     `yaml:"dedupe" toml:"dedupe"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener addresses
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// GRPCAddr serves the gRPC health service when set
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Public HTTPS, needed for the Bot Framework messaging endpoint
}

// BotConfig holds the Bot Framework registration and reply templates
type BotConfig struct {
	AppID                   string `yaml:"app_id" toml:"app_id"`
	AppPassword             string `yaml:"app_password" toml:"app_password"`
	TenantID                string `yaml:"tenant_id" toml:"tenant_id"`
	OAuthScope              string `yaml:"oauth_scope" toml:"oauth_scope"`
	DisplayName             string `yaml:"display_name" toml:"display_name"`
	DefaultReply            string `yaml:"default_reply" toml:"default_reply"`
	ProactiveDefaultMessage string `yaml:"proactive_default_message" toml:"proactive_default_message"`
}

// AuthConfig holds admin API credentials. Any of them may be empty.
type AuthConfig struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	APIKeyHash string `yaml:"api_key_hash" toml:"api_key_hash"` // bcrypt hash, alternative to api_key
	JWTSecret  string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// Enabled reports whether any admin credential is configured.
func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || a.APIKeyHash != "" || a.JWTSecret != ""
}

// ControllerConfig points at the upstream controller metrics API
type ControllerConfig struct {
	MetricsURL string        `yaml:"metrics_url" toml:"metrics_url"`
	BaseURL    string        `yaml:"base_url" toml:"base_url"`
	Timeout    time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// RegistryConfig bounds the conversation registry. Zero means unbounded.
type RegistryConfig struct {
	MaxConversations int `yaml:"max_conversations" toml:"max_conversations"`
}

// DedupeConfig controls the inbound activity redelivery guard
type DedupeConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// DatabaseConfig holds the delivery log database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// An empty path skips the file and builds the config from the environment alone.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Read builds a Config like Load but skips Validate. Operator commands use it
// to read an address or secret from a config that lacks bot credentials.
func Read(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, expandEnvVars(string(data)), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// decode picks the decoder from the file extension.
func decode(path, content string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(content, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(content), cfg)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// lookupFunc matches os.LookupEnv so tests can inject an environment.
type lookupFunc func(string) (string, bool)

// firstEnv returns the first non-empty value among the given variable names.
func firstEnv(lookup lookupFunc, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// envBinding maps a config field to the environment variables that override it.
type envBinding struct {
	target *string
	names  []string
}

// applyEnv overrides file values with environment variables. The Bot Framework
// variables accept both the upper-case and the SDK's CamelCase spellings.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	bindings := []envBinding{
		{&cfg.Bot.AppID, []string{"MICROSOFT_APP_ID", "MicrosoftAppId"}},
		{&cfg.Bot.AppPassword, []string{"MICROSOFT_APP_PASSWORD", "MicrosoftAppPassword"}},
		{&cfg.Bot.TenantID, []string{"MICROSOFT_APP_TENANT_ID", "MicrosoftAppTenantId"}},
		{&cfg.Bot.OAuthScope, []string{"MICROSOFT_APP_OAUTH_SCOPE", "MicrosoftAppOAuthScope", "MicrosoftAppScope"}},
		{&cfg.Bot.DisplayName, []string{"BOT_DISPLAY_NAME"}},
		{&cfg.Bot.DefaultReply, []string{"BOT_DEFAULT_REPLY"}},
		{&cfg.Bot.ProactiveDefaultMessage, []string{"PROACTIVE_DEFAULT_MESSAGE"}},
		{&cfg.Auth.APIKey, []string{"PROACTIVE_API_KEY"}},
		{&cfg.Auth.JWTSecret, []string{"TEAMS_GATEWAY_JWT_SECRET"}},
		{&cfg.Controller.MetricsURL, []string{"CONTROLLER_METRICS_URL"}},
		{&cfg.Controller.BaseURL, []string{"CONTROLLER_BASE_URL"}},
		{&cfg.Database.Path, []string{"TEAMS_GATEWAY_DB_PATH"}},
		{&cfg.Logging.Level, []string{"LOG_LEVEL"}},
		{&cfg.Env, []string{"ENV"}},
	}
	for _, b := range bindings {
		if v, ok := firstEnv(lookup, b.names...); ok {
			*b.target = v
		}
	}

	if port, ok := firstEnv(lookup, "PORT"); ok {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("PORT %q is not a valid port", port)
		}
		cfg.Server.HTTPAddr = withPort(cfg.Server.HTTPAddr, n)
	}
	return nil
}

// withPort keeps the host of addr and replaces its port.
func withPort(addr string, port int) string {
	host := "0.0.0.0"
	if addr != "" {
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// applyDefaults fills values left empty by the file and the environment.
func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = DefaultEnv
	}
	if cfg.Server.HTTPAddr == "" && !cfg.Tailscale.Enabled {
		cfg.Server.HTTPAddr = withPort("", DefaultPort)
	}
	if cfg.Bot.DisplayName == "" {
		cfg.Bot.DisplayName = DefaultBotDisplayName
	}
	if cfg.Bot.DefaultReply == "" {
		cfg.Bot.DefaultReply = DefaultBotReply
	}
	if cfg.Bot.ProactiveDefaultMessage == "" {
		cfg.Bot.ProactiveDefaultMessage = DefaultProactiveMessage
	}
	if cfg.Controller.Timeout == 0 {
		cfg.Controller.Timeout = DefaultControllerTimeout
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
	if cfg.Dedupe.MaxEntries == 0 {
		cfg.Dedupe.MaxEntries = DefaultDedupeMaxEntries
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDeliveryLogDatabasePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Bot.AppID == "" {
		return errors.New("bot.app_id is required (or set MICROSOFT_APP_ID)")
	}
	if c.Bot.AppPassword == "" {
		return errors.New("bot.app_password is required (or set MICROSOFT_APP_PASSWORD)")
	}

	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Registry.MaxConversations < 0 {
		return errors.New("registry.max_conversations must not be negative")
	}
	if c.Dedupe.MaxEntries < 0 {
		return errors.New("dedupe.max_entries must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Controller.TimeoutRaw != "" {
		cfg.Controller.Timeout, err = time.ParseDuration(cfg.Controller.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing controller.timeout %q: %w", cfg.Controller.TimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
