// Package config loads repolens settings from defaults, an optional YAML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: llm.default is read from
// REPOLENS_LLM_DEFAULT.
const EnvPrefix = "REPOLENS"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Gather     GatherConfig     `mapstructure:"gather"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GitHubConfig struct {
	Token           string        `mapstructure:"token"`
	BaseURL         string        `mapstructure:"base_url"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	MaxFileBytes    int           `mapstructure:"max_file_bytes"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	Retries         int           `mapstructure:"retries"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
}

type GatherConfig struct {
	PerProvider      time.Duration `mapstructure:"per_provider"`
	Deadline         time.Duration `mapstructure:"deadline"`
	Concurrency      int           `mapstructure:"concurrency"`
	MaxEvidenceBytes int           `mapstructure:"max_evidence_bytes"`
	Mode             string        `mapstructure:"mode"`
}

// BackendConfig holds the credentials and model for one LLM backend.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type LLMConfig struct {
	// Default names the backend used when a request does not pick one.
	// "auto" picks the first backend with credentials, then fake.
	Default     string        `mapstructure:"default"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Retries     int           `mapstructure:"retries"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RPM         int           `mapstructure:"rpm"`

	Groq   BackendConfig `mapstructure:"groq"`
	OpenAI BackendConfig `mapstructure:"openai"`
	Claude BackendConfig `mapstructure:"claude"`
	Gemini BackendConfig `mapstructure:"gemini"`
	Ollama OllamaConfig  `mapstructure:"ollama"`
}

// OllamaConfig needs no key; it is enabled explicitly or by setting a host.
type OllamaConfig struct {
	BackendConfig `mapstructure:",squash"`
	Enabled       bool `mapstructure:"enabled"`
}

type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxEntries  int           `mapstructure:"max_entries"`
	TTL         time.Duration `mapstructure:"ttl"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

type ArchiveConfig struct {
	// Driver is one of none, memory, postgres or s3.
	Driver      string   `mapstructure:"driver"`
	PostgresDSN string   `mapstructure:"postgres_dsn"`
	CacheSize   int      `mapstructure:"cache_size"`
	S3          S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// backendOrder is the "auto" preference order.
var backendOrder = []string{"groq", "claude", "openai", "gemini", "ollama"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.rps", 10.0)
	v.SetDefault("github.burst", 5)
	v.SetDefault("github.max_file_bytes", 8000)
	v.SetDefault("github.max_payload_bytes", 24000)
	v.SetDefault("github.retries", 3)
	v.SetDefault("github.retry_base", "500ms")

	v.SetDefault("gather.per_provider", "10s")
	v.SetDefault("gather.deadline", "45s")
	v.SetDefault("gather.concurrency", 0)
	v.SetDefault("gather.max_evidence_bytes", 60000)
	v.SetDefault("gather.mode", "standard")

	v.SetDefault("llm.default", "auto")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.retries", 0)
	v.SetDefault("llm.retry_base", "1s")
	v.SetDefault("llm.rpm", 0)
	for _, b := range backendOrder {
		v.SetDefault("llm."+b+".api_key", "")
		v.SetDefault("llm."+b+".model", "")
		v.SetDefault("llm."+b+".base_url", "")
	}
	v.SetDefault("llm.ollama.enabled", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.postgres_dsn", "")

	v.SetDefault("archive.driver", "memory")
	v.SetDefault("archive.postgres_dsn", "")
	v.SetDefault("archive.cache_size", 128)
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("archive.s3.access_key", "")
	v.SetDefault("archive.s3.secret_key", "")
	v.SetDefault("archive.s3.bucket", "repolens-reports")
	v.SetDefault("archive.s3.use_ssl", true)

	v.SetDefault("classifier.rules_file", "")
}

// bindEnv adds the conventional unprefixed variables. The prefixed form is
// listed first and wins when both are set.
func bindEnv(v *viper.Viper) error {
	binds := map[string][]string{
		"github.token":          {"GITHUB_TOKEN"},
		"llm.groq.api_key":      {"GROQ_API_KEY"},
		"llm.openai.api_key":    {"OPENAI_API_KEY"},
		"llm.claude.api_key":    {"ANTHROPIC_API_KEY"},
		"llm.gemini.api_key":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"llm.ollama.base_url":   {"OLLAMA_HOST"},
		"archive.s3.access_key": {"MINIO_ROOT_USER"},
		"archive.s3.secret_key": {"MINIO_ROOT_PASSWORD"},
	}
	for key, names := range binds {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration. An empty path searches for repolens.yaml in the
// working directory and $HOME/.config/repolens; a missing file is fine
// there, but an explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("repolens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/repolens")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", orDefault(path, "repolens.yaml"), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.LLM.Default = strings.ToLower(strings.TrimSpace(c.LLM.Default))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	c.Gather.Mode = strings.ToLower(strings.TrimSpace(c.Gather.Mode))
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	switch c.Archive.Driver {
	case "", "none", "memory":
	case "postgres":
		if c.Archive.PostgresDSN == "" {
			return errors.New("config: archive.postgres_dsn is required for the postgres driver")
		}
	case "s3":
		if c.Archive.S3.Endpoint == "" {
			return errors.New("config: archive.s3.endpoint is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown archive.driver %q", c.Archive.Driver)
	}
	if c.Gather.PerProvider <= 0 || c.Gather.Deadline <= 0 {
		return errors.New("config: gather.per_provider and gather.deadline must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("config: llm.timeout must be positive")
	}
	if c.LLM.Default != "auto" && c.LLM.Default != "fake" {
		if _, ok := c.LLM.Backend(c.LLM.Default); !ok {
			return fmt.Errorf("config: unknown llm.default %q", c.LLM.Default)
		}
	}
	return nil
}

// Backend returns the settings for a named backend.
func (l LLMConfig) Backend(name string) (BackendConfig, bool) {
	switch name {
	case "groq":
		return l.Groq, true
	case "openai":
		return l.OpenAI, true
	case "claude", "anthropic":
		return l.Claude, true
	case "gemini", "google":
		return l.Gemini, true
	case "ollama":
		return l.Ollama.BackendConfig, true
	case "fake", "offline":
		return BackendConfig{}, true
	}
	return BackendConfig{}, false
}

// Enabled lists the backends that have what they need to run, in "auto"
// preference order, followed by fake.
func (l LLMConfig) Enabled() []string {
	var out []string
	for _, name := range backendOrder {
		b, _ := l.Backend(name)
		if name == "ollama" {
			if l.Ollama.Enabled || b.BaseURL != "" {
				out = append(out, name)
			}
			continue
		}
		if strings.TrimSpace(b.APIKey) != "" {
			out = append(out, name)
		}
	}
	return append(out, "fake")
}

// DefaultBackend resolves "auto" to a concrete backend name.
func (l LLMConfig) DefaultBackend() string {
	if l.Default != "" && l.Default != "auto" {
		return l.Default
	}
	return l.Enabled()[0]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
