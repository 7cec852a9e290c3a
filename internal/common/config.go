package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/sicknote/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Variables   VariablesConfig  `toml:"variables"`
	Cache       CacheConfig      `toml:"cache"`
	Limiter     LimiterConfig    `toml:"limiter"`
	Renderer    RendererConfig   `toml:"renderer"`
	LLM         LLMConfig        `toml:"llm"`
	OpenRouter  OpenRouterConfig `toml:"openrouter"`
	Claude      ClaudeConfig     `toml:"claude"`
	Gemini      GeminiConfig     `toml:"gemini"`
	SMTP        SMTPConfig       `toml:"smtp"`
	Queue       QueueConfig      `toml:"queue"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
	// PublicURL prefixes download links returned to clients (empty = relative links)
	PublicURL string `toml:"public_url"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// VariablesConfig locates TOML files loaded into the KV store at startup
type VariablesConfig struct {
	Dir string `toml:"dir"` // Holds variables.toml and a variables/ directory (default: ".")
}

// CacheConfig controls the in-memory artifact cache
type CacheConfig struct {
	TTL           Duration `toml:"ttl"`            // Default entry lifetime (default: 1h)
	SweepInterval Duration `toml:"sweep_interval"` // Expired-entry sweep period (default: 2m)
	AITTL         Duration `toml:"ai_ttl"`         // Lifetime of cached text-generation responses (default: 24h)
}

// LimiterConfig controls admission to expensive resources
type LimiterConfig struct {
	MaxConcurrent int      `toml:"max_concurrent" validate:"min=1"` // Slots per named resource (default: 5)
	WaitTimeout   Duration `toml:"wait_timeout"`                    // Max wait for a slot (default: 30s)
}

// RendererConfig controls document output
type RendererConfig struct {
	OutputDir     string `toml:"output_dir" validate:"required"` // Directory for generated artifacts
	City          string `toml:"city"`                           // Place printed in the signature block
	Doctor        string `toml:"doctor"`                         // Signing doctor
	LicenseNumber string `toml:"license_number"`                 // Printed under the doctor name
	Footer        string `toml:"footer"`
}

// LLMProvider names the text-generation backend
type LLMProvider string

const (
	LLMProviderOpenRouter LLMProvider = "openrouter"
	LLMProviderClaude     LLMProvider = "claude"
	LLMProviderGemini     LLMProvider = "gemini"
	LLMProviderOffline    LLMProvider = "offline"
)

// LLMConfig contains provider-independent text-generation settings
type LLMConfig struct {
	Provider       LLMProvider   `toml:"provider" validate:"oneof=openrouter claude gemini offline"`
	Timeout        Duration      `toml:"timeout"`         // Per-call timeout (default: 60s)
	CacheResponses bool          `toml:"cache_responses"` // Cache identical prompts for cache.ai_ttl
	Breaker        BreakerConfig `toml:"breaker"`
}

// BreakerConfig configures the upstream circuit breaker
type BreakerConfig struct {
	Enabled          bool     `toml:"enabled"`
	MinRequests      uint32   `toml:"min_requests"`
	FailureThreshold float64  `toml:"failure_threshold"`
	Interval         Duration `toml:"interval"`
	Timeout          Duration `toml:"timeout"`
}

// OpenRouterConfig configures the OpenAI-compatible endpoint
type OpenRouterConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Referer string `toml:"referer"` // Sent as HTTP-Referer
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// SMTPConfig configures the pooled delivery transport
type SMTPConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	From           string   `toml:"from"`
	FromName       string   `toml:"from_name"`
	UseTLS         bool     `toml:"use_tls"`         // Implicit TLS (port 465); otherwise STARTTLS when offered
	MaxConnections int      `toml:"max_connections"` // Pool size (default: 5)
	RateLimit      float64  `toml:"rate_limit"`      // Messages per second (default: 10)
	MaxAttempts    int      `toml:"max_attempts"`    // Delivery attempts (default: 3)
	RetryDelay     Duration `toml:"retry_delay"`     // Linear backoff unit (default: 1s)
	DialTimeout    Duration `toml:"dial_timeout"`
	SendTimeout    Duration `toml:"send_timeout"` // Per-message session deadline when the caller sets none (default: 2m)
}

type QueueConfig struct {
	Backend           string      `toml:"backend" validate:"oneof=badger redis"` // "badger" or "redis"
	PollInterval      Duration    `toml:"poll_interval"`                         // How often badger workers poll
	Concurrency       int         `toml:"concurrency" validate:"min=1"`          // Number of concurrent workers
	VisibilityTimeout Duration    `toml:"visibility_timeout"`                    // Redelivery after worker loss
	QueueName         string      `toml:"queue_name" validate:"required"`
	Retention         Duration    `toml:"retention"`        // Completed job records kept for
	FailedRetention   Duration    `toml:"failed_retention"` // Failed job records kept for
	JanitorSchedule   string      `toml:"janitor_schedule"` // Cron schedule with seconds field
	Redis             RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // log file directory, relative to the executable when not absolute
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
		},
		Variables: VariablesConfig{
			Dir: ".",
		},
		Cache: CacheConfig{
			TTL:           Duration{time.Hour},
			SweepInterval: Duration{2 * time.Minute},
			AITTL:         Duration{24 * time.Hour},
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 5,
			WaitTimeout:   Duration{30 * time.Second},
		},
		Renderer: RendererConfig{
			OutputDir:     "./data/temp",
			City:          "Jakarta",
			Doctor:        "dr. AI System, Sp.KA",
			LicenseNumber: "No. SIP: AI/2024/001",
			Footer:        "Dokumen ini dihasilkan secara digital dan sah tanpa tanda tangan basah",
		},
		LLM: LLMConfig{
			Provider:       LLMProviderOpenRouter,
			Timeout:        Duration{60 * time.Second},
			CacheResponses: true,
			Breaker: BreakerConfig{
				Enabled:          true,
				MinRequests:      5,
				FailureThreshold: 0.6,
				Interval:         Duration{time.Minute},
				Timeout:          Duration{30 * time.Second},
			},
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-2.0-flash-001",
			Referer: "http://localhost:5173",
		},
		Claude: ClaudeConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		SMTP: SMTPConfig{
			Port:           587,
			FromName:       "Sicknote",
			MaxConnections: 5,
			RateLimit:      10,
			MaxAttempts:    3,
			RetryDelay:     Duration{time.Second},
			DialTimeout:    Duration{10 * time.Second},
			SendTimeout:    Duration{2 * time.Minute},
		},
		Queue: QueueConfig{
			Backend:           "badger",
			PollInterval:      Duration{500 * time.Millisecond},
			Concurrency:       4,
			VisibilityTimeout: Duration{15 * time.Minute},
			QueueName:         "sicknote_jobs",
			Retention:         Duration{time.Hour},
			FailedRetention:   Duration{24 * time.Hour},
			JanitorSchedule:   "0 */10 * * * *",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
			Dir:    "logs",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. kvStorage may be nil.
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	// Secrets held in the KV store fill gaps left by files and environment
	if kvStorage != nil {
		ctx := context.Background()
		if config.SMTP.Password == "" {
			if v, err := kvStorage.Get(ctx, "smtp_password"); err == nil {
				config.SMTP.Password = v
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SICKNOTE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("SICKNOTE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SICKNOTE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if url := os.Getenv("SICKNOTE_PUBLIC_URL"); url != "" {
		config.Server.PublicURL = url
	}

	// Storage
	if path := os.Getenv("SICKNOTE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("SICKNOTE_OUTPUT_DIR"); dir != "" {
		config.Renderer.OutputDir = dir
	}

	// Limiter
	if n := os.Getenv("SICKNOTE_MAX_CONCURRENT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.Limiter.MaxConcurrent = v
		}
	}

	// LLM
	if provider := os.Getenv("SICKNOTE_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("SICKNOTE_OPENROUTER_MODEL"); model != "" {
		config.OpenRouter.Model = model
	}
	if referer := os.Getenv("FRONTEND_URL"); referer != "" {
		config.OpenRouter.Referer = referer
	}

	// SMTP
	if host := os.Getenv("SICKNOTE_SMTP_HOST"); host != "" {
		config.SMTP.Host = host
	}
	if port := os.Getenv("SICKNOTE_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.SMTP.Port = p
		}
	}
	if user := os.Getenv("SICKNOTE_SMTP_USERNAME"); user != "" {
		config.SMTP.Username = user
	} else if user := os.Getenv("EMAIL_USER"); user != "" {
		config.SMTP.Username = user
	}
	if pass := os.Getenv("SICKNOTE_SMTP_PASSWORD"); pass != "" {
		config.SMTP.Password = pass
	} else if pass := os.Getenv("EMAIL_PASSWORD"); pass != "" {
		config.SMTP.Password = pass
	}
	if from := os.Getenv("SICKNOTE_SMTP_FROM"); from != "" {
		config.SMTP.From = from
	}
	if tlsStr := os.Getenv("SICKNOTE_SMTP_USE_TLS"); tlsStr != "" {
		config.SMTP.UseTLS = strings.ToLower(tlsStr) == "true" || tlsStr == "1"
	}

	// Queue
	if backend := os.Getenv("SICKNOTE_QUEUE_BACKEND"); backend != "" {
		config.Queue.Backend = strings.ToLower(backend)
	}
	if addr := os.Getenv("SICKNOTE_REDIS_ADDR"); addr != "" {
		config.Queue.Redis.Addr = addr
	} else if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		config.Queue.Redis.Addr = host + ":" + port
	}
	if pass := os.Getenv("SICKNOTE_REDIS_PASSWORD"); pass != "" {
		config.Queue.Redis.Password = pass
	}

	// Logging
	if level := os.Getenv("SICKNOTE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SICKNOTE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and the janitor schedule
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Queue.JanitorSchedule != "" {
		if err := ValidateJanitorSchedule(c.Queue.JanitorSchedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateJanitorSchedule validates a six-field (seconds-first) cron expression
func ValidateJanitorSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"openrouter_api_key": {"SICKNOTE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"},
		"anthropic_api_key":  {"SICKNOTE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":     {"SICKNOTE_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"smtp_password":      {"SICKNOTE_SMTP_PASSWORD"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
