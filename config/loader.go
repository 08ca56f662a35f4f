package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete bridge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Browser   BrowserConfig   `yaml:"browser" env:"BROWSER"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP front.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// APIKeys is the shared-secret allowlist. Empty disables auth.
	APIKeys        []string `yaml:"api_keys" env:"API_KEYS"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	RateLimitRPS   int      `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// BrowserConfig describes the already-running browser the bridge attaches to.
// The browser is launched and logged in out of band; the bridge only receives
// its DevTools websocket URL.
type BrowserConfig struct {
	// WSEndpoint is the CDP websocket URL of the running browser.
	WSEndpoint string `yaml:"ws_endpoint" env:"WS_ENDPOINT"`
	// BaseURL is the origin of the conversational web app.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// NewChatPath is the path that opens a fresh conversation thread.
	NewChatPath string `yaml:"new_chat_path" env:"NEW_CHAT_PATH"`
	// OrganizationID scopes the side-channel data endpoints.
	OrganizationID string `yaml:"organization_id" env:"ORGANIZATION_ID"`

	NavigationTimeout  time.Duration `yaml:"navigation_timeout" env:"NAVIGATION_TIMEOUT"`
	LoadTimeout        time.Duration `yaml:"load_timeout" env:"LOAD_TIMEOUT"`
	NetworkIdleTimeout time.Duration `yaml:"network_idle_timeout" env:"NETWORK_IDLE_TIMEOUT"`
	// SettleGrace is the fixed pause after load conditions pass, covering
	// client-side rendering the load events do not announce.
	SettleGrace time.Duration `yaml:"settle_grace" env:"SETTLE_GRACE"`

	// TypingCadence switches prompt injection from bulk fill to
	// per-character keystrokes with a randomized delay.
	TypingCadence  bool          `yaml:"typing_cadence" env:"TYPING_CADENCE"`
	TypingDelayMin time.Duration `yaml:"typing_delay_min" env:"TYPING_DELAY_MIN"`
	TypingDelayMax time.Duration `yaml:"typing_delay_max" env:"TYPING_DELAY_MAX"`

	// MaxPages bounds the pages the bridge may open in the shared browser.
	MaxPages int `yaml:"max_pages" env:"MAX_PAGES"`

	Selectors SelectorsConfig `yaml:"selectors" env:"SELECTORS"`
}

// SelectorsConfig overrides the CSS selectors for the vendor markup.
// Empty fields keep the built-in defaults. Kept as configuration because
// the remote markup changes without notice.
type SelectorsConfig struct {
	Input               string `yaml:"input" env:"INPUT"`
	SendButton          string `yaml:"send_button" env:"SEND_BUTTON"`
	ModelPicker         string `yaml:"model_picker" env:"MODEL_PICKER"`
	ModelOption         string `yaml:"model_option" env:"MODEL_OPTION"`
	AssistantMessage    string `yaml:"assistant_message" env:"ASSISTANT_MESSAGE"`
	GeneratingIndicator string `yaml:"generating_indicator" env:"GENERATING_INDICATOR"`
	CapacityNotice      string `yaml:"capacity_notice" env:"CAPACITY_NOTICE"`
	CapacityDismiss     string `yaml:"capacity_dismiss" env:"CAPACITY_DISMISS"`
}

// EngineConfig configures conversation handling, polling, and retries.
type EngineConfig struct {
	// Models is the allowlist exposed on /v1/models; requests naming
	// anything else are rejected.
	Models       []string `yaml:"models" env:"MODELS"`
	DefaultModel string   `yaml:"default_model" env:"DEFAULT_MODEL"`

	// PollStrategy selects the response poller: "sidechannel" or "dom".
	PollStrategy string        `yaml:"poll_strategy" env:"POLL_STRATEGY"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	PollAttempts int           `yaml:"poll_attempts" env:"POLL_ATTEMPTS"`

	InputTimeout time.Duration `yaml:"input_timeout" env:"INPUT_TIMEOUT"`

	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryDelayMin     time.Duration `yaml:"retry_delay_min" env:"RETRY_DELAY_MIN"`
	RetryDelayMax     time.Duration `yaml:"retry_delay_max" env:"RETRY_DELAY_MAX"`
	RateLimitMargin   time.Duration `yaml:"rate_limit_margin" env:"RATE_LIMIT_MARGIN"`
	RateLimitFallback time.Duration `yaml:"rate_limit_fallback" env:"RATE_LIMIT_FALLBACK"`

	// ThrottleEvery pauses a conversation for ThrottleCooldown after this
	// many sends, mimicking a human stepping away. Zero disables.
	ThrottleEvery    int           `yaml:"throttle_every" env:"THROTTLE_EVERY"`
	ThrottleCooldown time.Duration `yaml:"throttle_cooldown" env:"THROTTLE_COOLDOWN"`

	// StreamInterval paces artificial SSE chunks.
	StreamInterval time.Duration `yaml:"stream_interval" env:"STREAM_INTERVAL"`
}

// DatabaseConfig configures the optional transcript archive.
// An empty Driver disables archiving entirely.
type DatabaseConfig struct {
	// Driver: "sqlite", "postgres", or "" (archive off).
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures optional OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration in builder style.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "UIBRIDGE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults -> YAML file -> env overrides,
// then runs the validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Browser.WSEndpoint == "" {
		errs = append(errs, "browser.ws_endpoint is required")
	}
	if c.Browser.BaseURL == "" {
		errs = append(errs, "browser.base_url is required")
	}
	if c.Browser.MaxPages <= 0 {
		errs = append(errs, "browser.max_pages must be positive")
	}
	if len(c.Engine.Models) == 0 {
		errs = append(errs, "engine.models must not be empty")
	}
	if c.Engine.DefaultModel != "" && !contains(c.Engine.Models, c.Engine.DefaultModel) {
		errs = append(errs, "engine.default_model must be in engine.models")
	}
	if c.Engine.PollInterval <= 0 || c.Engine.PollAttempts <= 0 {
		errs = append(errs, "engine.poll_interval and engine.poll_attempts must be positive")
	}
	if c.Engine.RetryDelayMin > c.Engine.RetryDelayMax {
		errs = append(errs, "engine.retry_delay_min must not exceed engine.retry_delay_max")
	}
	switch c.Engine.PollStrategy {
	case "sidechannel", "dom":
	default:
		errs = append(errs, "engine.poll_strategy must be sidechannel or dom")
	}
	if c.Browser.TypingCadence && c.Browser.TypingDelayMin > c.Browser.TypingDelayMax {
		errs = append(errs, "browser.typing_delay_min must not exceed browser.typing_delay_max")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
