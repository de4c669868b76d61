package config_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/sensei/internal/sensei/config"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensei.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENSEI_LLM_API_KEY", "sk-test")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4.1-nano" {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.MaxTokens != 2000 || cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("unexpected generation defaults: %+v", cfg.LLM)
	}
	if cfg.Memory.Backend != config.BackendSQLite || cfg.Memory.Namespace != "saved_understanding" {
		t.Errorf("unexpected memory defaults: %+v", cfg.Memory)
	}
	if cfg.Commands.Prefix != "/sensei" || cfg.Commands.RatePerMinute != 20 {
		t.Errorf("unexpected command defaults: %+v", cfg.Commands)
	}
	if cfg.LLM.APIKey.Reveal() != "sk-test" {
		t.Error("api key should come from the environment")
	}
}

func TestLoad_MissingKeyIsInvalid(t *testing.T) {
	t.Setenv("SENSEI_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := config.Load("")
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "SENSEI_LLM_API_KEY") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestLoad_ProviderSpecificKeyFallback(t *testing.T) {
	t.Setenv("SENSEI_LLM_API_KEY", "")
	t.Setenv("SENSEI_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey.Reveal() != "sk-ant-test" {
		t.Errorf("expected anthropic key fallback")
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	t.Setenv("SENSEI_LLM_MODEL", "gpt-4o-mini")
	path := writeYAML(t, `
log:
  level: debug
llm:
  provider: mock
  model: from-file
  maxTokens: 512
  temperature: 0.2
  timeout: 15s
memory:
  backend: none
commands:
  prefix: /tutor
  ratePerMinute: 5
sessions:
  idleTimeout: 2h
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.LLM.Provider != "mock" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("env should win over file, got model %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 512 || cfg.LLM.Timeout != 15*time.Second {
		t.Errorf("unexpected llm values: %+v", cfg.LLM)
	}
	if cfg.EffectiveTemperature() != 0.2 {
		t.Errorf("explicit temperature should win, got %v", cfg.EffectiveTemperature())
	}
	if cfg.MemoryEnabled() {
		t.Error("memory should be disabled")
	}
	if cfg.Commands.Prefix != "/tutor" || cfg.Sessions.IdleTimeout != 2*time.Hour {
		t.Errorf("unexpected values: %+v %+v", cfg.Commands, cfg.Sessions)
	}
}

func TestLoad_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown top-level key", "colour: blue\n"},
		{"unknown provider", "llm:\n  provider: palm\n"},
		{"negative tokens", "llm:\n  maxTokens: -1\n"},
		{"temperature too high", "llm:\n  temperature: 3\n"},
		{"bad duration", "llm:\n  timeout: soon\n"},
		{"bad prefix", "commands:\n  prefix: sensei\n"},
		{"bad room id", "matrix:\n  rooms: [\"general\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SENSEI_LLM_PROVIDER", "mock")
			_, err := config.Load(writeYAML(t, tt.body))
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("SENSEI_LLM_PROVIDER", "mock")
	cfg, err := config.Load(writeYAML(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.Backend != config.BackendSQLite {
		t.Errorf("expected defaults, got %+v", cfg.Memory)
	}
}

func TestEffectiveTemperature(t *testing.T) {
	cfg := config.Default()
	if got := cfg.EffectiveTemperature(); got != 0.5 {
		t.Errorf("with memory: got %v, want 0.5", got)
	}
	cfg.Memory.Backend = config.BackendNone
	if got := cfg.EffectiveTemperature(); got != 0.7 {
		t.Errorf("without memory: got %v, want 0.7", got)
	}
	zero := 0.0
	cfg.LLM.Temperature = &zero
	if got := cfg.EffectiveTemperature(); got != 0 {
		t.Errorf("explicit zero should be kept, got %v", got)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"pgvector without dsn", func(c *config.Config) {
			c.Memory.Backend = config.BackendPGVector
			c.Memory.Embedding.Provider = "openai"
			c.Memory.Embedding.APIKey = "k"
		}, "SENSEI_POSTGRES_DSN"},
		{"pinecone without embedder", func(c *config.Config) {
			c.Memory.Backend = config.BackendPinecone
			c.Memory.PineconeAPIKey = "k"
			c.Memory.PineconeIndex = "idx"
		}, "embedding provider"},
		{"matrix without token", func(c *config.Config) {
			c.Matrix.Homeserver = "https://matrix.example.org"
			c.Matrix.UserID = "@sensei:example.org"
		}, "SENSEI_MATRIX_ACCESS_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.Provider = "mock"
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, config.ErrInvalid) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected ErrInvalid mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSecretsDoNotPrint(t *testing.T) {
	t.Setenv("SENSEI_LLM_API_KEY", "sk-very-secret")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out := fmt.Sprintf("%+v", cfg.LLM); strings.Contains(out, "sk-very-secret") {
		t.Fatalf("secret leaked: %s", out)
	}
}
