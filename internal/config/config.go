// Package config loads mnemo's settings from a YAML (or JSON) file with
// environment overrides. A missing file means defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/mnemo/internal/embedding"
	"github.com/felixgeelhaar/mnemo/internal/embedding/onnx"
)

type Config struct {
	DataDir    string           `json:"data_dir" yaml:"data_dir"`
	Provider   ProviderConfig   `json:"provider" yaml:"provider"`
	Summarizer SummarizerConfig `json:"summarizer" yaml:"summarizer"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Memory     MemoryConfig     `json:"memory" yaml:"memory"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

type ProviderConfig struct {
	Name        string  `json:"name" yaml:"name"` // openai, ollama, anthropic, gemini, cli, stub
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	CLIPath     string  `json:"cli_path" yaml:"cli_path"`
}

type SummarizerConfig struct {
	// Disabled stores raw messages instead of model summaries.
	Disabled    bool    `json:"disabled" yaml:"disabled"`
	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

type EmbeddingConfig struct {
	Backend string `json:"backend" yaml:"backend"` // auto, hash, provider, onnx
	// Dimensions of 0 means the model's native size.
	Dimensions int         `json:"dimensions" yaml:"dimensions"`
	CacheSize  int64       `json:"cache_size" yaml:"cache_size"`
	ONNX       onnx.Config `json:"onnx" yaml:"onnx"`
}

type MemoryConfig struct {
	Backend     string `json:"backend" yaml:"backend"` // flat, chromem
	TopK        int    `json:"top_k" yaml:"top_k"`
	RecentLimit int    `json:"recent_limit" yaml:"recent_limit"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	JSON    bool `json:"json" yaml:"json"`
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".mnemo"),
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
		},
		Summarizer: SummarizerConfig{
			Temperature: 0.7,
			MaxTokens:   100,
		},
		Embedding: EmbeddingConfig{
			Backend:   "auto",
			CacheSize: 10000,
		},
		Memory: MemoryConfig{
			Backend:     "flat",
			TopK:        3,
			RecentLimit: 10,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// DefaultPath is ~/.mnemo/config.yaml.
func DefaultPath() string {
	return filepath.Join(Default().DataDir, "config.yaml")
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.DataDir = expandHome(cfg.DataDir)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("MNEMO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("MNEMO_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := getenv("MNEMO_MODEL"); v != "" {
		c.Provider.Model = v
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// EffectiveModel is the model to request from the provider. The built-in
// default names an OpenAI model, so other providers get "" and pick their own.
func (p ProviderConfig) EffectiveModel() string {
	if p.Name != "openai" && p.Model == Default().Provider.Model {
		return ""
	}
	return p.Model
}

func (c Config) TranscriptDir() string { return filepath.Join(c.DataDir, "transcripts") }
func (c Config) VectorDir() string     { return filepath.Join(c.DataDir, "vectors") }
func (c Config) ChromemDir() string    { return filepath.Join(c.DataDir, "chromem") }
func (c Config) ExportDir() string     { return filepath.Join(c.DataDir, "exports") }
func (c Config) DBPath() string        { return filepath.Join(c.DataDir, "metadata.db") }

// ResolvedEmbedding settles the "auto" backend and a zero dimension.
// Providers with an embedding endpoint embed through it at the model's
// native size; everything else falls back to 384-dimension hash vectors.
func (c Config) ResolvedEmbedding() EmbeddingConfig {
	e := c.Embedding
	if e.Backend == "auto" {
		e.Backend = "hash"
		if _, ok := providerDimensions[c.Provider.Name]; ok {
			e.Backend = "provider"
		}
	}
	if e.Dimensions == 0 {
		switch e.Backend {
		case "provider":
			e.Dimensions = providerDimensions[c.Provider.Name]
		default:
			e.Dimensions = embedding.DefaultDimensions
		}
	}
	return e
}

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Err folds the errors into one, nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(r.Errors, "; "))
}

var (
	providers         = []string{"openai", "ollama", "anthropic", "gemini", "cli", "stub"}
	embeddingBackends = []string{"auto", "hash", "provider", "onnx"}

	// providerDimensions are the native sizes of the embedding models each
	// provider calls: text-embedding-3-small, text-embedding-004 and
	// nomic-embed-text.
	providerDimensions = map[string]int{
		"openai": 1536,
		"gemini": 768,
		"ollama": 768,
	}
	memoryBackends    = []string{"flat", "chromem"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	if c.DataDir == "" {
		fail("data_dir is required")
	}
	if !oneOf(c.Provider.Name, providers) {
		fail("provider.name %q is not one of %s", c.Provider.Name, strings.Join(providers, ", "))
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		fail("provider.temperature must be between 0 and 2")
	}
	if !oneOf(c.Embedding.Backend, embeddingBackends) {
		fail("embedding.backend %q is not one of %s", c.Embedding.Backend, strings.Join(embeddingBackends, ", "))
	}
	if c.Embedding.Dimensions < 0 {
		fail("embedding.dimensions must not be negative")
	}
	if !oneOf(c.Memory.Backend, memoryBackends) {
		fail("memory.backend %q is not one of %s", c.Memory.Backend, strings.Join(memoryBackends, ", "))
	}
	if c.Memory.TopK <= 0 {
		fail("memory.top_k must be positive")
	}
	if c.Memory.RecentLimit <= 0 {
		fail("memory.recent_limit must be positive")
	}

	emb := c.ResolvedEmbedding()
	if emb.Backend == "onnx" && emb.ONNX.ModelPath == "" {
		fail("embedding.onnx.model_path is required for the onnx backend")
	}
	if emb.Backend == "hash" {
		res.Warnings = append(res.Warnings, "hash embeddings only match identical summaries; configure provider or onnx embeddings for semantic recall")
	}
	if emb.Backend == "provider" && (c.Provider.Name == "anthropic" || c.Provider.Name == "cli") {
		fail("provider %q cannot embed; use the hash or onnx embedding backend", c.Provider.Name)
	} else if emb.Backend == "provider" && emb.Dimensions == 0 {
		fail("embedding.dimensions is required for provider %q", c.Provider.Name)
	}

	return res
}
