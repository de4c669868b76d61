// Package config loads Sensei configuration.
//
// Values come from three layers, later layers winning: built-in defaults, an
// optional YAML file validated against an embedded JSON schema, and SENSEI_*
// environment variables. Credentials are read from the environment only.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/sensei/common/environment"
	"github.com/bdobrica/sensei/common/redact"
)

// ErrInvalid marks configuration that prevents startup.
var ErrInvalid = errors.New("config: invalid configuration")

//go:embed schema.json
var schemaJSON string

// Memory backends.
const (
	BackendNone     = "none"
	BackendSQLite   = "sqlite"
	BackendPGVector = "pgvector"
	BackendPinecone = "pinecone"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"baseURL"`
	MaxTokens int    `yaml:"maxTokens"`
	// Temperature overrides the flow default (0.7, or 0.5 with memory).
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	APIKey redact.Secret `yaml:"-"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseURL"`

	APIKey redact.Secret `yaml:"-"`
}

type MemoryConfig struct {
	Backend       string          `yaml:"backend"`
	Namespace     string          `yaml:"namespace"`
	PineconeIndex string          `yaml:"pineconeIndex"`
	Embedding     EmbeddingConfig `yaml:"embedding"`

	PineconeAPIKey redact.Secret `yaml:"-"`
	PostgresDSN    redact.Secret `yaml:"-"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MatrixConfig struct {
	Homeserver string   `yaml:"homeserver"`
	UserID     string   `yaml:"userID"`
	Rooms      []string `yaml:"rooms"`

	AccessToken redact.Secret `yaml:"-"`
}

// Enabled reports whether the Matrix front-end should run.
func (m MatrixConfig) Enabled() bool { return m.Homeserver != "" }

type CommandsConfig struct {
	Prefix        string `yaml:"prefix"`
	RatePerMinute int    `yaml:"ratePerMinute"`
}

type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete Sensei configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Database DatabaseConfig `yaml:"database"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Commands CommandsConfig `yaml:"commands"`
	Sessions SessionsConfig `yaml:"sessions"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4.1-nano",
			MaxTokens: 2000,
			Timeout:   60 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:   BackendSQLite,
			Namespace: "saved_understanding",
			Embedding: EmbeddingConfig{Provider: "none", Model: "text-embedding-3-small"},
		},
		Database: DatabaseConfig{Path: "./sensei.db"},
		Commands: CommandsConfig{Prefix: "/sensei", RatePerMinute: 20},
		Sessions: SessionsConfig{IdleTimeout: 24 * time.Hour},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty), and the environment, then validates it. Every error
// wraps ErrInvalid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
		}
		if err := cfg.apply(data); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply validates data against the schema and decodes it over cfg.
func (c *Config) apply(data []byte) error {
	if err := validateSchema(data); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}
	return nil
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource("sensei-config.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		panic(fmt.Sprintf("config: load schema: %v", err))
	}
	return c.MustCompile("sensei-config.json")
}

// validateSchema checks raw YAML against the embedded JSON schema. The
// document goes through JSON so numbers and maps have the shapes the
// validator expects.
func validateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("convert yaml to json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Log.Level = environment.StringOr("SENSEI_LOG_LEVEL", c.Log.Level)
	c.Log.Format = environment.StringOr("SENSEI_LOG_FORMAT", c.Log.Format)

	c.LLM.Provider = environment.StringOr("SENSEI_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = environment.StringOr("SENSEI_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = environment.StringOr("SENSEI_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = environment.IntOr("SENSEI_LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = environment.DurationOr("SENSEI_LLM_TIMEOUT", c.LLM.Timeout)
	if v := environment.StringOr("SENSEI_LLM_TEMPERATURE", ""); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.Temperature = &t
		}
	}
	c.LLM.APIKey = redact.Secret(environment.FirstString(llmKeyVars(c.LLM.Provider)...))

	c.Memory.Backend = environment.StringOr("SENSEI_MEMORY_BACKEND", c.Memory.Backend)
	c.Memory.Namespace = environment.StringOr("SENSEI_MEMORY_NAMESPACE", c.Memory.Namespace)
	c.Memory.PineconeIndex = environment.StringOr("SENSEI_PINECONE_INDEX", c.Memory.PineconeIndex)
	c.Memory.PineconeAPIKey = redact.Secret(environment.FirstString("SENSEI_PINECONE_API_KEY", "PINECONE_API_KEY"))
	c.Memory.PostgresDSN = redact.Secret(environment.FirstString("SENSEI_POSTGRES_DSN", "DATABASE_URL"))
	c.Memory.Embedding.Provider = environment.StringOr("SENSEI_EMBEDDING_PROVIDER", c.Memory.Embedding.Provider)
	c.Memory.Embedding.Model = environment.StringOr("SENSEI_EMBEDDING_MODEL", c.Memory.Embedding.Model)
	c.Memory.Embedding.BaseURL = environment.StringOr("SENSEI_EMBEDDING_BASE_URL", c.Memory.Embedding.BaseURL)
	c.Memory.Embedding.APIKey = redact.Secret(environment.FirstString("SENSEI_EMBEDDING_API_KEY", "OPENAI_API_KEY"))

	c.Database.Path = environment.StringOr("SENSEI_DATABASE_PATH", c.Database.Path)

	c.Matrix.Homeserver = environment.StringOr("SENSEI_MATRIX_HOMESERVER", c.Matrix.Homeserver)
	c.Matrix.UserID = environment.StringOr("SENSEI_MATRIX_USER_ID", c.Matrix.UserID)
	c.Matrix.Rooms = environment.StringSliceOr("SENSEI_MATRIX_ROOMS", c.Matrix.Rooms)
	c.Matrix.AccessToken = redact.Secret(environment.StringOr("SENSEI_MATRIX_ACCESS_TOKEN", ""))

	c.Commands.Prefix = environment.StringOr("SENSEI_COMMAND_PREFIX", c.Commands.Prefix)
	c.Commands.RatePerMinute = environment.IntOr("SENSEI_RATE_PER_MINUTE", c.Commands.RatePerMinute)
	c.Sessions.IdleTimeout = environment.DurationOr("SENSEI_SESSION_IDLE_TIMEOUT", c.Sessions.IdleTimeout)
	c.HTTP.Addr = environment.StringOr("SENSEI_HTTP_ADDR", c.HTTP.Addr)
}

func llmKeyVars(provider string) []string {
	switch provider {
	case "anthropic":
		return []string{"SENSEI_LLM_API_KEY", "ANTHROPIC_API_KEY"}
	default:
		return []string{"SENSEI_LLM_API_KEY", "OPENAI_API_KEY"}
	}
}

// MemoryEnabled reports whether a memory backend is configured.
func (c *Config) MemoryEnabled() bool {
	return c.Memory.Backend != BackendNone && c.Memory.Backend != ""
}

// EffectiveTemperature returns the configured temperature or the flow
// default: 0.5 with a memory backend, 0.7 without.
func (c *Config) EffectiveTemperature() float64 {
	if c.LLM.Temperature != nil {
		return *c.LLM.Temperature
	}
	if c.MemoryEnabled() {
		return 0.5
	}
	return 0.7
}

// Validate checks cross-field requirements that the schema cannot express,
// including credentials that only the environment supplies.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm provider %q needs SENSEI_LLM_API_KEY", c.LLM.Provider))
		}
	case "langchain", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm max tokens must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm timeout must be positive"))
	}

	switch c.Memory.Backend {
	case BackendNone, BackendSQLite:
	case BackendPGVector:
		if c.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory backend pgvector needs SENSEI_POSTGRES_DSN"))
		}
		if c.Memory.Embedding.Provider != "openai" {
			errs = append(errs, errors.New("memory backend pgvector needs an embedding provider"))
		}
	case BackendPinecone:
		if c.Memory.PineconeAPIKey == "" || c.Memory.PineconeIndex == "" {
			errs = append(errs, errors.New("memory backend pinecone needs SENSEI_PINECONE_API_KEY and an index"))
		}
		if c.Memory.Embedding.Provider != "openai" {
			errs = append(errs, errors.New("memory backend pinecone needs an embedding provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown memory backend %q", c.Memory.Backend))
	}
	if c.Memory.Embedding.Provider == "openai" && c.Memory.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding provider openai needs SENSEI_EMBEDDING_API_KEY"))
	}

	if c.Matrix.Enabled() {
		if c.Matrix.UserID == "" || c.Matrix.AccessToken == "" {
			errs = append(errs, errors.New("matrix needs a user id and SENSEI_MATRIX_ACCESS_TOKEN"))
		}
	}
	if c.Commands.Prefix == "" {
		errs = append(errs, errors.New("command prefix must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
