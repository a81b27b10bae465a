package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the travel assistant service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, local, etc.
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model serves each role in the pipeline
type LLMRoutingConfig struct {
	Agent    string `mapstructure:"agent"`    // main conversational turns
	Selector string `mapstructure:"selector"` // tool-routing classifier
	Verifier string `mapstructure:"verifier"` // grounding check; empty falls back to agent
}

// MiddlewareConfig configures the per-turn middleware pipeline
type MiddlewareConfig struct {
	RetryModel RetryConfig     `mapstructure:"retry_model"`
	RetryTool  RetryConfig     `mapstructure:"retry_tool"`
	Selector   SelectorConfig  `mapstructure:"selector"`
	Guardrail  GuardrailConfig `mapstructure:"guardrail"`
}

// RetryConfig parameterizes one retry policy instance
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

func (r RetryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	if r.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1")
	}
	return nil
}

// SelectorConfig toggles the tool-selection gate
type SelectorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GuardrailConfig controls the grounding guardrail
type GuardrailConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxRetries int  `mapstructure:"max_retries"`
}

// AgentConfig bounds the turn loop
type AgentConfig struct {
	MaxSteps      int `mapstructure:"max_steps"`
	HistoryWindow int `mapstructure:"history_window"`
}

// ToolsConfig contains per-tool settings
type ToolsConfig struct {
	Weather WeatherConfig `mapstructure:"weather"`
}

// WeatherConfig configures the weather forecast tool
type WeatherConfig struct {
	GeocodeURL      string        `mapstructure:"geocode_url"`
	ForecastURL     string        `mapstructure:"forecast_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	GeocodeInterval time.Duration `mapstructure:"geocode_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig contains optional storage backends
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the optional Redis geocode cache. An empty Addr
// keeps caching in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.listen", ":8000")
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("llm.providers.openai.type", "openai")
	viper.SetDefault("llm.providers.openai.timeout", "60s")
	viper.SetDefault("llm.providers.openai.models.gpt-4o-mini.name", "gpt-4o-mini")
	viper.SetDefault("llm.providers.openai.models.gpt-4o-mini.max_tokens", 2048)
	viper.SetDefault("llm.providers.openai.models.gpt-4o-mini.temperature", 0.7)
	viper.SetDefault("llm.routing.agent", "gpt-4o-mini")
	viper.SetDefault("llm.routing.selector", "gpt-4o-mini")
	viper.SetDefault("llm.routing.verifier", "")
	viper.SetDefault("middleware.retry_model.max_attempts", 3)
	viper.SetDefault("middleware.retry_model.initial_delay", "1s")
	viper.SetDefault("middleware.retry_model.backoff_factor", 2.0)
	viper.SetDefault("middleware.retry_tool.max_attempts", 2)
	viper.SetDefault("middleware.retry_tool.initial_delay", "1500ms")
	viper.SetDefault("middleware.retry_tool.backoff_factor", 2.0)
	viper.SetDefault("middleware.selector.enabled", true)
	viper.SetDefault("middleware.guardrail.enabled", true)
	viper.SetDefault("middleware.guardrail.max_retries", 1)
	viper.SetDefault("agent.max_steps", 8)
	viper.SetDefault("agent.history_window", 10)
	viper.SetDefault("tools.weather.geocode_url", "https://nominatim.openstreetmap.org/search")
	viper.SetDefault("tools.weather.forecast_url", "https://api.met.no/weatherapi/locationforecast/2.0/compact")
	viper.SetDefault("tools.weather.user_agent", "TravelAssistant/1.0")
	viper.SetDefault("tools.weather.timeout", "15s")
	viper.SetDefault("tools.weather.geocode_interval", "1050ms")
	viper.SetDefault("tools.weather.cache_ttl", "24h")
	viper.SetDefault("storage.redis.addr", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("telemetry.enabled", true)
}

// LoadConfig loads config from file. A missing config file is not an error
// when no explicit path is given: defaults plus AVA_* environment variables
// are enough to run the service.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("AVA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match (AVA_*)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Middleware.RetryModel.Validate(); err != nil {
		panic(fmt.Errorf("middleware.retry_model: %w", err))
	}
	if err := config.Middleware.RetryTool.Validate(); err != nil {
		panic(fmt.Errorf("middleware.retry_tool: %w", err))
	}
	return &config
}
