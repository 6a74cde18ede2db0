package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"multirag/internal/domain"
)

// EnvCollectionPrefix marks environment variables that declare collections.
const EnvCollectionPrefix = "VECTOR_STORE_ID_"

// Config holds all configuration for the RAG tool.
type Config struct {
	IndexDir    string             `yaml:"index_dir"`
	Collections []CollectionConfig `yaml:"collections"`
	Retrieve    RetrieveConfig     `yaml:"retrieve"`
	Answer      AnswerConfig       `yaml:"answer"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// CollectionConfig declares one searchable collection. Path wins over ID;
// a relative ID is resolved under IndexDir and a relative Path against the
// config file's directory.
type CollectionConfig struct {
	Name  string `yaml:"name"`
	ID    string `yaml:"id,omitempty"`
	Path  string `yaml:"path,omitempty"`
	Title string `yaml:"title,omitempty"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK         int           `yaml:"top_k"`
	Concurrency  int           `yaml:"concurrency"`
	DisplayNames []DisplayName `yaml:"display_names"`
}

// DisplayName rewrites the first occurrence of From in a source name.
type DisplayName struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// AnswerConfig holds answer generation configuration.
type AnswerConfig struct {
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	MaxContextTokens int           `yaml:"max_context_tokens"`
	SystemPrompt     string        `yaml:"system_prompt"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	BaseURL          string        `yaml:"base_url"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "openai", "mock"
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		IndexDir: "indexes",
		Retrieve: RetrieveConfig{
			TopK:        30,
			Concurrency: 4,
		},
		Answer: AnswerConfig{
			Model:            "gpt-4o",
			Temperature:      0.2,
			Timeout:          60 * time.Second,
			MaxRetries:       2,
			MaxContextTokens: 12000,
			APIKeyEnv:        "OPENAI_API_KEY",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.IndexDir != "" && !filepath.IsAbs(cfg.IndexDir) {
		cfg.IndexDir = filepath.Join(base, cfg.IndexDir)
	}
	for i, col := range cfg.Collections {
		if col.Path != "" && !filepath.IsAbs(col.Path) {
			cfg.Collections[i].Path = filepath.Join(base, col.Path)
		}
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	cfg.IndexDir = filepath.Join(dir, cfg.IndexDir)
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadEnv loads a .env file into the process environment and adds every
// VECTOR_STORE_ID_<NAME> variable as a collection. A missing file is not an
// error. Collections already declared by name are left untouched.
func (c *Config) LoadEnv(path string) error {
	if path == "" {
		path = os.Getenv("DOTENV_PATH")
	}
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	c.mergeEnvCollections(os.Environ())
	return nil
}

func (c *Config) mergeEnvCollections(environ []string) {
	declared := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		declared[col.Name] = true
	}

	var added []CollectionConfig
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvCollectionPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvCollectionPrefix))
		if name == "" || declared[name] {
			continue
		}
		declared[name] = true
		added = append(added, CollectionConfig{Name: name, ID: value})
	}

	sort.Slice(added, func(i, j int) bool { return added[i].Name < added[j].Name })
	c.Collections = append(c.Collections, added...)
}

// Collection returns the declared collection with the given name.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return CollectionConfig{}, false
}

// Location returns the storage directory of a collection, or "" when it has
// neither a path nor an id.
func (c *Config) Location(col CollectionConfig) string {
	switch {
	case col.Path != "":
		return col.Path
	case col.ID == "":
		return ""
	case filepath.IsAbs(col.ID):
		return col.ID
	default:
		return filepath.Join(c.IndexDir, col.ID)
	}
}

// Resolve turns requested collection names and doublestar patterns into
// collection references, in request order without duplicates. Unknown names
// produce a reference without a path. With no names and no patterns every
// declared collection is selected.
func (c *Config) Resolve(names, patterns []string) ([]domain.CollectionRef, error) {
	if len(names) == 0 && len(patterns) == 0 {
		patterns = []string{"*"}
	}

	seen := make(map[string]bool)
	var refs []domain.CollectionRef
	add := func(ref domain.CollectionRef) {
		if seen[ref.Name] {
			return
		}
		seen[ref.Name] = true
		refs = append(refs, ref)
	}

	for _, name := range names {
		col, ok := c.Collection(name)
		if !ok {
			add(domain.CollectionRef{Name: name})
			continue
		}
		add(domain.CollectionRef{Name: col.Name, Path: c.Location(col)})
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid collection pattern: %q", pattern)
		}
		for _, col := range c.Collections {
			matched, err := doublestar.Match(pattern, col.Name)
			if err != nil {
				return nil, err
			}
			if matched {
				add(domain.CollectionRef{Name: col.Name, Path: c.Location(col)})
			}
		}
	}

	return refs, nil
}

// DisplayTitle returns the configured title of a collection, or its name.
func (c *Config) DisplayTitle(name string) string {
	if col, ok := c.Collection(name); ok && col.Title != "" {
		return col.Title
	}
	return name
}
