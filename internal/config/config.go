package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Data      DataConfig      `yaml:"data"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Chunking  ChunkingConfig  `yaml:"chunking,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
}

// StoreConfig locates the persisted index and blob directories
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// DataConfig locates the documents to ingest
type DataConfig struct {
	Dir     string   `yaml:"dir"`
	Exclude []string `yaml:"exclude,omitempty"` // doublestar patterns
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai"
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model,omitempty"`

	Dimensions int `yaml:"dimensions,omitempty"`
	BatchSize  int `yaml:"batch_size,omitempty"`
	MaxChars   int `yaml:"max_chars,omitempty"` // truncate text before sending
}

// LLMConfig holds the chat-model configuration used for query expansion
// and chart classification. An empty API key (with no OPENAI_API_KEY in
// the environment) disables both.
type LLMConfig struct {
	APIKey         string `yaml:"api_key,omitempty"`
	Model          string `yaml:"model,omitempty"`
	ClassifyCharts bool   `yaml:"classify_charts,omitempty"`
}

// ChunkingConfig holds parent/child window sizes in approximate tokens
type ChunkingConfig struct {
	ParentTokens  int `yaml:"parent_tokens,omitempty"`
	ChildTokens   int `yaml:"child_tokens,omitempty"`
	OverlapTokens int `yaml:"overlap_tokens,omitempty"`
}

// RetrievalConfig holds search-specific configuration
type RetrievalConfig struct {
	TopK int `yaml:"top_k,omitempty"`
	RRFK int `yaml:"rrf_k,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.kbindex/config/kbindex.yaml
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(configPath)
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".kbindex", "config", "kbindex.yaml"), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME prefixes to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Store.Dir == "" {
		c.Store.Dir = "./kb_store"
	}
	c.Store.Dir = expandPath(c.Store.Dir)

	if c.Data.Dir == "" {
		c.Data.Dir = "./kb_data"
	}
	c.Data.Dir = expandPath(c.Data.Dir)

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 20
	}
	if c.Embedding.MaxChars == 0 {
		c.Embedding.MaxChars = 8000
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}

	if c.Chunking.ParentTokens == 0 {
		c.Chunking.ParentTokens = 2000
	}
	if c.Chunking.ChildTokens == 0 {
		c.Chunking.ChildTokens = 256
	}
	if c.Chunking.OverlapTokens == 0 {
		c.Chunking.OverlapTokens = 50
	}

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.RRFK == 0 {
		c.Retrieval.RRFK = 60
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("batch_size must be between 1 and 100, got: %d", c.Embedding.BatchSize)
	}

	if c.Chunking.ParentTokens < c.Chunking.ChildTokens {
		return fmt.Errorf("parent_tokens (%d) must be >= child_tokens (%d)",
			c.Chunking.ParentTokens, c.Chunking.ChildTokens)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got: %d", c.Retrieval.TopK)
	}

	return nil
}

const defaultConfigTemplate = `# KBIndex Configuration
#
# Edit this file for your environment.
# Default location: $HOME/.kbindex/config/kbindex.yaml

store:
  dir: ./kb_store

data:
  dir: ./kb_data
  # exclude:
  #   - "**/*.tmp"

embedding:
  provider: openai
  # api_key may be omitted when OPENAI_API_KEY is set in the environment
  # api_key: your-openai-api-key
  model: text-embedding-3-small
  dimensions: 1536
  batch_size: 20
  max_chars: 8000

llm:
  model: gpt-4o-mini
  classify_charts: true

chunking:
  parent_tokens: 2000
  child_tokens: 256
  overlap_tokens: 50

retrieval:
  top_k: 3
  rrf_k: 60
`

// WriteDefaultTemplate creates a default configuration file if it does
// not exist. It returns true when a file was created.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
