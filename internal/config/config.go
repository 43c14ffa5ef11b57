package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	EmbedModel  string  `mapstructure:"embed_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EvaluationConfig configures answer-quality scoring. Unset model fields
// fall back to the generation config field-by-field, so evaluation can run
// on a different (stronger or cheaper) model than the one answering.
type EvaluationConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Timeout     float64  `mapstructure:"timeout_seconds"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	EmbedModel  string   `mapstructure:"embed_model"`
}

// Resolve applies per-field fallback from the generation config. Each field
// inherits independently; setting only the model keeps the generation
// temperature and embedding model.
func (e EvaluationConfig) Resolve(llm LLMConfig) (model string, temperature float64, embedModel string) {
	model = e.Model
	if model == "" {
		model = llm.Model
	}
	temperature = llm.Temperature
	if e.Temperature != nil {
		temperature = *e.Temperature
	}
	embedModel = e.EmbedModel
	if embedModel == "" {
		embedModel = llm.EmbedModel
	}
	return model, temperature, embedModel
}

// TimeoutDuration returns the evaluation timeout as a duration (default 30s).
func (e EvaluationConfig) TimeoutDuration() time.Duration {
	if e.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.Timeout * float64(time.Second))
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// SecretsConfig selects the backend that fills API keys left out of the
// config file. "env" reads LECTERN_-prefixed environment variables; "file"
// reads a local JSON file and is meant for development.
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	FilePath string `mapstructure:"file_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.Chunking.Overlap >= c.Chunking.Size && c.Chunking.Size > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", c.Chunking.Overlap, c.Chunking.Size))
	}

	if c.Retrieval.TopK < 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d is negative", c.Retrieval.TopK))
	}

	if c.Secrets.Provider == "file" && c.Secrets.FilePath == "" {
		warnings = append(warnings, "secrets provider 'file' is configured but file_path is empty")
	}

	if c.Evaluation.Enabled && c.Evaluation.Timeout < 0 {
		warnings = append(warnings, fmt.Sprintf("evaluation timeout %.1fs is negative", c.Evaluation.Timeout))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LECTERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embed_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "documents")
	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("evaluation.timeout_seconds", 30.0)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
