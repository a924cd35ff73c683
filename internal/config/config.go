package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"energyrag/internal/domain"
)

// DataConfig locates the input documents.
type DataConfig struct {
	ResourceDir string `yaml:"resource_dir"`
}

// ChunkingConfig configures how documents are split into chunks.
type ChunkingConfig struct {
	ChunkSize         int `yaml:"chunk_size"`
	ChunkOverlap      int `yaml:"chunk_overlap"`
	BoundaryTolerance int `yaml:"boundary_tolerance,omitempty"`
}

// RetrievalConfig configures the query-time search.
type RetrievalConfig struct {
	NumDocs         int     `yaml:"num_docs"`
	ChunksPerDoc    int     `yaml:"chunks_per_doc,omitempty"`
	MinScore        float64 `yaml:"min_score"`
	DedupTolerance  float64 `yaml:"dedup_tolerance,omitempty"`
	ActiveEmbedding string  `yaml:"active_embedding"`
	ActiveDB        string  `yaml:"active_db"`
}

// GenerationConfig selects the LLM and bounds the prompt and retries.
type GenerationConfig struct {
	ActiveStudent     string `yaml:"active_student"`
	PromptBudgetChars int    `yaml:"prompt_budget_chars,omitempty"`
	MaxAttempts       int    `yaml:"max_attempts,omitempty"`
	BackoffMillis     int    `yaml:"backoff_millis,omitempty"`
}

// IndexingConfig tunes the offline indexing job.
type IndexingConfig struct {
	Workers          int `yaml:"workers,omitempty"`
	SummarySentences int `yaml:"summary_sentences,omitempty"`
}

// EmbeddingConfig describes one selectable embedding model.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	DocumentPrefix    string  `yaml:"document_prefix,omitempty"`
	QueryPrefix       string  `yaml:"query_prefix,omitempty"`
}

// Timeout returns the per-request timeout.
func (c EmbeddingConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// LLMConfig describes one selectable generation backend.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty"`
	MaxTokens         int     `yaml:"max_tokens,omitempty"`
	Temperature       float64 `yaml:"temperature,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// DBConfig selects and configures the vector index backend.
type DBConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path,omitempty"`
	URL         string `yaml:"url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Collection  string `yaml:"collection,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// Timeout returns the per-request timeout.
func (c DBConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// AppConfig is the root application configuration structure.
// It is built once at startup and passed by value to component constructors.
type AppConfig struct {
	Data       DataConfig                 `yaml:"data"`
	Chunking   ChunkingConfig             `yaml:"chunking"`
	Retrieval  RetrievalConfig            `yaml:"retrieval"`
	Generation GenerationConfig           `yaml:"generation"`
	Indexing   IndexingConfig             `yaml:"indexing"`
	Embeddings map[string]EmbeddingConfig `yaml:"embeddings"`
	LLM        map[string]LLMConfig       `yaml:"llm"`
	DB         map[string]DBConfig        `yaml:"db"`
}

// ActiveEmbedding returns the embedding entry selected by retrieval.active_embedding.
func (c *AppConfig) ActiveEmbedding() EmbeddingConfig {
	return c.Embeddings[c.Retrieval.ActiveEmbedding]
}

// ActiveLLM returns the generation entry selected by generation.active_student.
func (c *AppConfig) ActiveLLM() LLMConfig {
	return c.LLM[c.Generation.ActiveStudent]
}

// ActiveDB returns the index entry selected by retrieval.active_db.
func (c *AppConfig) ActiveDB() DBConfig {
	return c.DB[c.Retrieval.ActiveDB]
}

// Load reads, defaults and validates the config at path.
// A missing file is an error: there is no implicit configuration.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("config file %s not found (run 'energyrag config init')", path)}
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies optional defaults and validates.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Reason: "parse yaml: " + err.Error()}
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/energyrag/config.yaml.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
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

// DefaultUserConfigPath returns ~/.config/energyrag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "energyrag", "config.yaml"), nil
}

// Example returns a complete starter configuration.
func Example() *AppConfig {
	cfg := &AppConfig{
		Data:       DataConfig{ResourceDir: "./resources"},
		Chunking:   ChunkingConfig{ChunkSize: 800, ChunkOverlap: 100},
		Retrieval:  RetrievalConfig{NumDocs: 5, ChunksPerDoc: 2, MinScore: 0.2, ActiveEmbedding: "minilm", ActiveDB: "local"},
		Generation: GenerationConfig{ActiveStudent: "gpt"},
		Embeddings: map[string]EmbeddingConfig{
			"minilm":  {Provider: "ollama", Model: "all-minilm", Dimensions: 384},
			"openai":  {Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536, APIKeyEnv: "OPENAI_API_KEY"},
			"e5":      {Provider: "ollama", Model: "jeffh/intfloat-multilingual-e5-large:f16", Dimensions: 1024, DocumentPrefix: "passage: ", QueryPrefix: "query: "},
			"offline": {Provider: "hashing", Model: "hashing", Dimensions: 512},
		},
		LLM: map[string]LLMConfig{
			"gpt":    {Provider: "openai", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
			"claude": {Provider: "anthropic", Model: "claude-3-5-sonnet-latest", APIKeyEnv: "ANTHROPIC_API_KEY"},
			"gemini": {Provider: "gemini", Model: "gemini-2.0-flash", APIKeyEnv: "GEMINI_API_KEY"},
			"groq":   {Provider: "groq", Model: "llama-3.3-70b-versatile", APIKeyEnv: "GROQ_API_KEY"},
			"local":  {Provider: "ollama", Model: "llama3.2"},
		},
		DB: map[string]DBConfig{
			"local":  {Type: "sqlite", Path: "./energyrag.db"},
			"qdrant": {Type: "qdrant", URL: "http://localhost:6333", Collection: "energy_docs"},
			"memory": {Type: "memory"},
		},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// applyConfigDefaults fills optional tunables only. Required values are
// left alone so Validate can reject them.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunking.BoundaryTolerance == 0 && cfg.Chunking.ChunkSize > 0 {
		cfg.Chunking.BoundaryTolerance = cfg.Chunking.ChunkSize / 10
	}
	if cfg.Retrieval.DedupTolerance == 0 {
		cfg.Retrieval.DedupTolerance = 0.5
	}
	if cfg.Generation.PromptBudgetChars == 0 {
		cfg.Generation.PromptBudgetChars = 12000
	}
	if cfg.Generation.MaxAttempts == 0 {
		cfg.Generation.MaxAttempts = 3
	}
	if cfg.Generation.BackoffMillis == 0 {
		cfg.Generation.BackoffMillis = 200
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 4
	}
	if cfg.Indexing.SummarySentences == 0 {
		cfg.Indexing.SummarySentences = 2
	}
	for name, e := range cfg.Embeddings {
		if e.BatchSize == 0 {
			e.BatchSize = 32
		}
		if e.TimeoutSecs == 0 {
			e.TimeoutSecs = 30
		}
		cfg.Embeddings[name] = e
	}
	for name, l := range cfg.LLM {
		if l.TimeoutSecs == 0 {
			l.TimeoutSecs = 120
		}
		cfg.LLM[name] = l
	}
	for name, d := range cfg.DB {
		if d.TimeoutSecs == 0 {
			d.TimeoutSecs = 15
		}
		cfg.DB[name] = d
	}
}
