// Package config loads campusgpt configuration from a TOML file with
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default file name looked up in the working directory.
const DefaultPath = "campusgpt.toml"

// Config is the full configuration surface of the campusgpt binary.
type Config struct {
	// ContextName is the institution the assistant answers for.
	ContextName string `toml:"context_name"`

	Crawl  CrawlConfig  `toml:"crawl"`
	Index  IndexConfig  `toml:"index"`
	Models ModelsConfig `toml:"models"`
	Chat   ChatConfig   `toml:"chat"`
	Server ServerConfig `toml:"server"`
}

// CrawlConfig configures the content acquisition engine.
type CrawlConfig struct {
	// SeedURLs start the crawl.
	SeedURLs []string `toml:"seed_urls"`

	// Domain scopes the crawl; links outside it are not followed.
	Domain string `toml:"domain"`

	// MaxPages caps the number of URLs dispatched to workers.
	MaxPages int `toml:"max_pages"`

	// Workers is the fetch worker pool size.
	Workers int `toml:"workers"`

	// RequestsPerSecond is the politeness throttle shared by all
	// workers.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// DataDir is the root of the crawl artifact tree.
	DataDir string `toml:"data_dir"`

	// UserAgent is sent on every request.
	UserAgent string `toml:"user_agent"`
}

// Timeout returns the per-fetch timeout as a duration.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IndexConfig configures the chunking and embedding pipeline.
type IndexConfig struct {
	// VectorStoreDir holds the persisted index and mapping files.
	VectorStoreDir string `toml:"vector_store_dir"`

	// ChunkSize is the recursive splitter target, in characters.
	ChunkSize int `toml:"chunk_size"`

	// ChunkOverlap is the recursive splitter overlap, in characters.
	ChunkOverlap int `toml:"chunk_overlap"`

	// MinChunkChars drops chunks below this floor.
	MinChunkChars int `toml:"min_chunk_chars"`

	// TokenThreshold switches from whole-document to hybrid chunking.
	TokenThreshold int `toml:"token_threshold"`

	// BatchSize is the number of chunks per embedding request.
	BatchSize int `toml:"batch_size"`
}

// ModelsConfig names the external models and carries their credentials.
// API keys come from the environment, never from the TOML file.
type ModelsConfig struct {
	// OpenAIKey is read from OPENAI_API_KEY.
	OpenAIKey string `toml:"-"`

	// MistralKey is read from MISTRAL_API_KEY.
	MistralKey string `toml:"-"`

	// CompletionModel generates the final answers.
	CompletionModel string `toml:"completion_model"`

	// ClassifierModel classifies question intent.
	ClassifierModel string `toml:"classifier_model"`

	// RewriterModel rewrites follow-up questions.
	RewriterModel string `toml:"rewriter_model"`

	// EmbeddingModel embeds chunks and queries. Changing it requires a
	// full index rebuild.
	EmbeddingModel string `toml:"embedding_model"`
}

// ChatConfig configures the conversation orchestrator.
type ChatConfig struct {
	// SearchK is the number of chunks retrieved per question.
	SearchK int `toml:"search_k"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`

	// SessionDBPath enables transcript persistence when non-empty.
	SessionDBPath string `toml:"session_db_path"`
}

// Load reads the TOML file at path (DefaultPath when empty), applies
// defaults and environment overrides. A missing file is not an error:
// the defaults stand alone.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Models.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Models.MistralKey = os.Getenv("MISTRAL_API_KEY")

	cfg.clamp()
	return cfg, nil
}

func defaults() Config {
	return Config{
		ContextName: "Université de Lomé",
		Crawl: CrawlConfig{
			MaxPages:          2000,
			Workers:           8,
			RequestsPerSecond: 1.0,
			TimeoutSeconds:    20,
			DataDir:           "scraped_documents",
			UserAgent:         "campusgpt-crawler/1.0",
		},
		Index: IndexConfig{
			VectorStoreDir: "vector_store",
			ChunkSize:      1500,
			ChunkOverlap:   150,
			MinChunkChars:  20,
			TokenThreshold: 8000,
			BatchSize:      150,
		},
		Models: ModelsConfig{
			CompletionModel: "gpt-4.1-mini",
			ClassifierModel: "mistral-small-latest",
			RewriterModel:   "mistral-small-latest",
			EmbeddingModel:  "mistral-embed",
		},
		Chat: ChatConfig{
			SearchK: 10,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
	}
}

// clamp restores defaults for values a config file zeroed or set to
// nonsense.
func (c *Config) clamp() {
	d := defaults()
	if c.Crawl.Workers <= 0 {
		c.Crawl.Workers = d.Crawl.Workers
	}
	if c.Crawl.MaxPages <= 0 {
		c.Crawl.MaxPages = d.Crawl.MaxPages
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		c.Crawl.TimeoutSeconds = d.Crawl.TimeoutSeconds
	}
	if c.Crawl.RequestsPerSecond <= 0 {
		c.Crawl.RequestsPerSecond = d.Crawl.RequestsPerSecond
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = d.Index.ChunkSize
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		c.Index.ChunkOverlap = c.Index.ChunkSize / 10
	}
	if c.Index.MinChunkChars <= 0 {
		c.Index.MinChunkChars = d.Index.MinChunkChars
	}
	if c.Index.TokenThreshold <= 0 {
		c.Index.TokenThreshold = d.Index.TokenThreshold
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = d.Index.BatchSize
	}
	if c.Chat.SearchK <= 0 {
		c.Chat.SearchK = d.Chat.SearchK
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}
