// Package config loads the YAML application configuration and applies
// defaults and BABYRAG_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API and logging.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// ChunkerConfig sets the word window used to split documents.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// PooledEmbedderConfig points at the tokenizer and inference services.
type PooledEmbedderConfig struct {
	TokenizerURL         string `yaml:"tokenizer_url"`
	InferenceURL         string `yaml:"inference_url"`
	TokenizerTimeoutSecs int    `yaml:"tokenizer_timeout_secs"`
	InferenceTimeoutSecs int    `yaml:"inference_timeout_secs"`
	Workers              int    `yaml:"workers"`
	// Dimensions pins the expected embedding size; 0 learns it from the
	// first model response.
	Dimensions int `yaml:"dimensions"`
}

// EmbedderConfig selects the embedder: "pooled" or "stats".
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	Pooled *PooledEmbedderConfig `yaml:"pooled,omitempty"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	URL         string `yaml:"url"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects the store: "chroma", "qdrant" or "memory".
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Chroma *ChromaConfig `yaml:"chroma,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// OllamaConfig configures the streaming generation client.
type OllamaConfig struct {
	URL         string   `yaml:"url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// GeneratorConfig selects the generator: "ollama" or "echo".
type GeneratorConfig struct {
	Type   string        `yaml:"type"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// IngestConfig tunes batching and the ingest summary.
type IngestConfig struct {
	BatchSize        int  `yaml:"batch_size"`
	SummarySentences int  `yaml:"summary_sentences"`
	DisableSummary   bool `yaml:"disable_summary"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Ingest      IngestConfig      `yaml:"ingest"`
	FakeMode    bool              `yaml:"fake_mode"`
}

// Load reads a config from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = *defaultConfig()
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/babyrag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); errors.Is(err, os.ErrNotExist) {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown type %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}
	check("embedder.type", c.Embedder.Type, "pooled", "stats")
	check("vector_store.type", c.VectorStore.Type, "chroma", "qdrant", "memory")
	check("generator.type", c.Generator.Type, "ollama", "echo")
	check("server.log_format", c.Server.LogFormat, "text", "json")
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "babyrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "text"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 512
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}
	if cfg.Ingest.SummarySentences == 0 {
		cfg.Ingest.SummarySentences = 3
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "pooled"
	}
	if cfg.Embedder.Type == "pooled" {
		if cfg.Embedder.Pooled == nil {
			cfg.Embedder.Pooled = &PooledEmbedderConfig{}
		}
		p := cfg.Embedder.Pooled
		if p.TokenizerURL == "" {
			p.TokenizerURL = "http://localhost:8001"
		}
		if p.InferenceURL == "" {
			p.InferenceURL = "http://localhost:8002"
		}
		if p.TokenizerTimeoutSecs == 0 {
			p.TokenizerTimeoutSecs = 10
		}
		if p.InferenceTimeoutSecs == 0 {
			p.InferenceTimeoutSecs = 30
		}
		if p.Workers == 0 {
			p.Workers = 4
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chroma"
	}
	switch cfg.VectorStore.Type {
	case "chroma":
		if cfg.VectorStore.Chroma == nil {
			cfg.VectorStore.Chroma = &ChromaConfig{}
		}
		c := cfg.VectorStore.Chroma
		if c.URL == "" {
			c.URL = "http://localhost:8000"
		}
		if c.Collection == "" {
			c.Collection = "babyrag"
		}
		if c.TimeoutSecs == 0 {
			c.TimeoutSecs = 15
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "babyrag"
		}
		if q.APIKeyEnv == "" {
			q.APIKeyEnv = "QDRANT_API_KEY"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.Type == "ollama" {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		o := cfg.Generator.Ollama
		if o.URL == "" {
			o.URL = "http://localhost:11434"
		}
		if o.Model == "" {
			o.Model = "llama3"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 120
		}
	}
}

// applyEnvOverrides lets deployments repoint services without editing YAML.
// URL overrides only apply to the component type that is selected.
func applyEnvOverrides(cfg *AppConfig) error {
	if v, ok := os.LookupEnv("BABYRAG_FAKE_MODE"); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BABYRAG_FAKE_MODE: %w", err)
		}
		cfg.FakeMode = on
	}
	if v := os.Getenv("BABYRAG_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("BABYRAG_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("BABYRAG_CHROMA_URL"); v != "" && cfg.VectorStore.Chroma != nil {
		cfg.VectorStore.Chroma.URL = v
	}
	if v := os.Getenv("BABYRAG_OLLAMA_URL"); v != "" && cfg.Generator.Ollama != nil {
		cfg.Generator.Ollama.URL = v
	}
	if p := cfg.Embedder.Pooled; p != nil {
		if v := os.Getenv("BABYRAG_TOKENIZER_URL"); v != "" {
			p.TokenizerURL = v
		}
		if v := os.Getenv("BABYRAG_INFERENCE_URL"); v != "" {
			p.InferenceURL = v
		}
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.APIKey == "" && q.APIKeyEnv != "" {
		q.APIKey = os.Getenv(q.APIKeyEnv)
	}
	return nil
}
