// Package config loads weather-agents settings from an optional YAML file,
// WEATHER_* environment variables and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/KamdynS/weather-agents/agent/guardrail"
	"github.com/KamdynS/weather-agents/llm"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools/openmeteo"
)

// EnvPrefix prefixes every environment override, e.g. WEATHER_LLM_MODEL.
const EnvPrefix = "WEATHER"

// Router modes. Orchestrate and handoff are router-driven; the others put a
// language model in charge of the conversation.
const (
	ModeOrchestrate   = "orchestrate"
	ModeHandoff       = "handoff"
	ModeSingle        = "single"
	ModeToolUse       = "tooluse"
	ModeAgentsAsTools = "agents-as-tools"
)

// Guardrail classifiers and locators.
const (
	ClassifierKeyword = "keyword"
	ClassifierLLM     = "llm"
	ClassifierChain   = "chain"

	LocatorGazetteer = "gazetteer"
	LocatorLLM       = "llm"
	LocatorChain     = "chain"
)

// Session backends.
const (
	SessionMemory   = "memory"
	SessionRedis    = "redis"
	SessionPostgres = "postgres"
)

// Span exporters.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
)

const defaultServiceName = "weather-agents"

// Config is the root of the settings tree.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm" json:"llm"`
	OpenMeteo OpenMeteoConfig `mapstructure:"openmeteo" json:"openmeteo"`
	Router    RouterConfig    `mapstructure:"router" json:"router"`
	Session   SessionConfig   `mapstructure:"session" json:"session"`
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing" json:"tracing"`
}

// LLMConfig selects the language-model collaborator.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider" json:"provider" validate:"required,oneof=openai anthropic"`
	APIKey      string          `mapstructure:"api_key" json:"api_key,omitempty"`
	Model       string          `mapstructure:"model" json:"model"`
	BaseURL     string          `mapstructure:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Temperature float64         `mapstructure:"temperature" json:"temperature" validate:"min=0,max=2"`
	MaxTokens   int             `mapstructure:"max_tokens" json:"max_tokens" validate:"min=0,max=100000"`
	Timeout     time.Duration   `mapstructure:"timeout" json:"timeout" validate:"min=0"`
	Retry       llm.RetryConfig `mapstructure:"retry" json:"retry"`
}

// OpenMeteoConfig points the tool invokers at the forecast and air-quality
// APIs.
type OpenMeteoConfig struct {
	ForecastURL   string        `mapstructure:"forecast_url" json:"forecast_url" validate:"required,url"`
	AirQualityURL string        `mapstructure:"air_quality_url" json:"air_quality_url" validate:"required,url"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

// RouterConfig shapes the agent topology.
type RouterConfig struct {
	Mode       string `mapstructure:"mode" json:"mode" validate:"required,oneof=orchestrate handoff single tooluse agents-as-tools"`
	Workers    int    `mapstructure:"workers" json:"workers" validate:"min=1,max=64"`
	MaxDepth   int    `mapstructure:"max_depth" json:"max_depth" validate:"min=1,max=16"`
	Classifier string `mapstructure:"classifier" json:"classifier" validate:"required,oneof=keyword llm chain"`
	Locator    string `mapstructure:"locator" json:"locator" validate:"required,oneof=gazetteer llm chain"`
	// Narrate lets the language model rewrite successful specialist answers.
	Narrate       bool             `mapstructure:"narrate" json:"narrate"`
	MaxIterations int              `mapstructure:"max_iterations" json:"max_iterations" validate:"min=1,max=20"`
	Policy        guardrail.Policy `mapstructure:"policy" json:"policy"`
}

// SessionConfig selects the conversation store.
type SessionConfig struct {
	Backend     string        `mapstructure:"backend" json:"backend" validate:"required,oneof=memory redis postgres"`
	RedisURL    string        `mapstructure:"redis_url" json:"redis_url,omitempty" validate:"required_if=Backend redis"`
	PostgresDSN string        `mapstructure:"postgres_dsn" json:"postgres_dsn,omitempty" validate:"required_if=Backend postgres"`
	Prefix      string        `mapstructure:"prefix" json:"prefix"`
	Table       string        `mapstructure:"table" json:"table"`
	TTL         time.Duration `mapstructure:"ttl" json:"ttl" validate:"min=0"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr" validate:"required"`
	CORSOrigins     []string      `mapstructure:"cors_origins" json:"cors_origins"`
	RateLimit       float64       `mapstructure:"rate_limit" json:"rate_limit" validate:"min=0"`
	Burst           int           `mapstructure:"burst" json:"burst" validate:"min=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" json:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"required,oneof=json console"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter" json:"exporter" validate:"required,oneof=none stdout"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    string(llm.ProviderOpenAI),
			Temperature: 0.2,
			MaxTokens:   1000,
			Timeout:     30 * time.Second,
			Retry:       llm.DefaultRetryConfig(),
		},
		OpenMeteo: OpenMeteoConfig{
			ForecastURL:   openmeteo.DefaultForecastBaseURL,
			AirQualityURL: openmeteo.DefaultAirQualityBaseURL,
			Timeout:       openmeteo.DefaultTimeout,
		},
		Router: RouterConfig{
			Mode:          ModeOrchestrate,
			Workers:       2,
			MaxDepth:      4,
			Classifier:    ClassifierKeyword,
			Locator:       LocatorGazetteer,
			MaxIterations: 3,
			Policy:        guardrail.Policy{MaxInputChars: 2000},
		},
		Session: SessionConfig{
			Backend: SessionMemory,
			Prefix:  "weather",
			Table:   "chat_turns",
			TTL:     24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			RateLimit:       5,
			Burst:           10,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  obs.LevelInfo,
			Format: obs.FormatConsole,
		},
		Tracing: TracingConfig{
			Exporter:    TracingNone,
			ServiceName: defaultServiceName,
		},
	}
}

// Load reads .env (when present), then the YAML file at path (when path is
// non-empty), then WEATHER_* variables, over Default. The result is
// validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadWith(viper.New(), path)
}

// LoadWith is Load without the .env step, on a caller-supplied viper
// instance.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	cfg := Default()
	setDefaults(v, "", reflect.ValueOf(cfg).Elem())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of the struct as a viper key so that
// AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

func (c *Config) applyFallbacks() {
	if c.LLM.APIKey == "" {
		switch llm.Provider(c.LLM.Provider) {
		case llm.ProviderOpenAI:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case llm.ProviderAnthropic:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModel(llm.Provider(c.LLM.Provider))
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
}

// NeedsLLM reports whether the configured topology calls a language model.
func (c *Config) NeedsLLM() bool {
	switch c.Router.Mode {
	case ModeSingle, ModeToolUse, ModeAgentsAsTools:
		return true
	}
	return c.Router.Narrate ||
		c.Router.Classifier != ClassifierKeyword ||
		c.Router.Locator != LocatorGazetteer
}

// Validate checks struct constraints and the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.NeedsLLM() && c.LLM.APIKey == "" {
		return fmt.Errorf("invalid config: llm.api_key is required for router mode %q with classifier %q, locator %q", c.Router.Mode, c.Router.Classifier, c.Router.Locator)
	}
	if c.LLM.Model != "" {
		if err := llm.CheckProvider(c.LLM.Model, llm.Provider(c.LLM.Provider)); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Session.RedisURL = mask(c.Session.RedisURL)
	out.Session.PostgresDSN = mask(c.Session.PostgresDSN)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
