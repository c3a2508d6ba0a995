// Package config loads layered configuration: hardcoded defaults, then an
// optional TOML file (memoryd.toml), then environment variables. Environment
// wins; the standard DATABASE_URL variable overrides the database URL
// specifically.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigFile is the TOML file looked up in the working directory.
const ConfigFile = "memoryd.toml"

// Config is the full service configuration.
type Config struct {
	DatabaseURL string `toml:"database_url"`
	LogLevel    string `toml:"log_level"`
	LogFile     string `toml:"log_file"`

	Embedding         EmbeddingConfig     `toml:"embedding"`
	Extraction        ExtractionConfig    `toml:"extraction"`
	Consolidation     ConsolidationConfig `toml:"consolidation"`
	Salience          SalienceConfig      `toml:"salience"`
	Search            SearchConfig        `toml:"search"`
	QueryIntelligence QIConfig            `toml:"query_intelligence"`
	Events            EventsConfig        `toml:"events"`
}

// Provider names shared by the embedding, extraction, and QI sections.
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	Provider      string `toml:"provider"` // local | remote
	OllamaBaseURL string `toml:"ollama_base_url"`
	OllamaModel   string `toml:"ollama_model"`
	APIKey        string `toml:"api_key"`
	BaseURL       string `toml:"base_url"`
	Model         string `toml:"model"`
	Dimension     int    `toml:"dimension"`
	CacheDir      string `toml:"cache_dir"`
	QueueCapacity int    `toml:"queue_capacity"`
}

// ExtractionConfig parameterizes the entity/fact extraction pipeline.
type ExtractionConfig struct {
	Enabled         bool   `toml:"enabled"`
	Provider        string `toml:"provider"` // local | remote
	OllamaBaseURL   string `toml:"ollama_base_url"`
	OllamaModel     string `toml:"ollama_model"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	MaxContentChars int    `toml:"max_content_chars"`
	QueueCapacity   int    `toml:"queue_capacity"`
}

// ConsolidationConfig parameterizes the near-duplicate consolidation worker.
type ConsolidationConfig struct {
	Enabled               bool    `toml:"enabled"`
	SimilarityThreshold   float64 `toml:"similarity_threshold"`
	MaxConsolidationGroup int     `toml:"max_consolidation_group"`
	Provider              string  `toml:"provider"` // local | remote
	OllamaBaseURL         string  `toml:"ollama_base_url"`
	OllamaModel           string  `toml:"ollama_model"`
	APIKey                string  `toml:"api_key"`
	BaseURL               string  `toml:"base_url"`
	Model                 string  `toml:"model"`
	QueueCapacity         int     `toml:"queue_capacity"`
}

// SalienceConfig carries the scoring weights and decay constant.
type SalienceConfig struct {
	RecencyWeight       float64 `toml:"recency_weight"`
	AccessWeight        float64 `toml:"access_weight"`
	SemanticWeight      float64 `toml:"semantic_weight"`
	ReinforcementWeight float64 `toml:"reinforcement_weight"`
	RecencyLambda       float64 `toml:"recency_lambda"`
	DebugScoring        bool    `toml:"debug_scoring"`
}

// SearchConfig selects the lexical backend.
type SearchConfig struct {
	BM25Backend string `toml:"bm25_backend"` // native | extension
}

// QIConfig toggles query intelligence and bounds its latency.
type QIConfig struct {
	ExpansionEnabled   bool   `toml:"expansion_enabled"`
	RerankingEnabled   bool   `toml:"reranking_enabled"`
	Provider           string `toml:"provider"` // local | remote
	OllamaBaseURL      string `toml:"ollama_base_url"`
	OllamaModel        string `toml:"ollama_model"`
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	LatencyBudgetMS    int    `toml:"latency_budget_ms"`
	RerankContentChars int    `toml:"rerank_content_chars"`
}

// EventsConfig controls lifecycle event publication over NATS.
type EventsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Embedded bool   `toml:"embedded"`
	URL      string `toml:"url"`
}

const defaultOllamaURL = "http://localhost:11434"

// Default returns the baseline configuration before file and env layers.
func Default() Config {
	return Config{
		DatabaseURL: "postgres://localhost:5432/memoryd?sslmode=disable",
		LogLevel:    "info",
		Embedding: EmbeddingConfig{
			Provider:      ProviderLocal,
			OllamaBaseURL: defaultOllamaURL,
			OllamaModel:   "nomic-embed-text",
			BaseURL:       "https://api.openai.com/v1",
			Model:         "text-embedding-3-small",
			Dimension:     768,
			QueueCapacity: 1000,
		},
		Extraction: ExtractionConfig{
			Enabled:         true,
			Provider:        ProviderLocal,
			OllamaBaseURL:   defaultOllamaURL,
			OllamaModel:     "llama3.2:3b",
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4.1-mini",
			MaxContentChars: 1500,
			QueueCapacity:   1000,
		},
		Consolidation: ConsolidationConfig{
			Enabled:               true,
			SimilarityThreshold:   0.92,
			MaxConsolidationGroup: 5,
			Provider:              ProviderLocal,
			OllamaBaseURL:         defaultOllamaURL,
			OllamaModel:           "llama3.2:3b",
			BaseURL:               "https://api.openai.com/v1",
			Model:                 "gpt-4.1-mini",
			QueueCapacity:         500,
		},
		Salience: SalienceConfig{
			RecencyWeight:       0.25,
			AccessWeight:        0.15,
			SemanticWeight:      0.45,
			ReinforcementWeight: 0.15,
			RecencyLambda:       0.01,
		},
		Search: SearchConfig{
			BM25Backend: "native",
		},
		QueryIntelligence: QIConfig{
			Provider:           ProviderLocal,
			OllamaBaseURL:      defaultOllamaURL,
			OllamaModel:        "llama3.2:3b",
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4.1-mini",
			LatencyBudgetMS:    2000,
			RerankContentChars: 300,
		},
		Events: EventsConfig{
			Enabled:  true,
			Embedded: true,
			URL:      "nats://127.0.0.1:4222",
		},
	}
}

// Load assembles the configuration: defaults, then memoryd.toml if present,
// then environment variables (a .env file is honored the same way).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if _, err := os.Stat(ConfigFile); err == nil {
		if _, err := toml.DecodeFile(ConfigFile, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", ConfigFile, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DatabaseURL, "MEMORYD_DATABASE_URL")
	// The conventional variable wins over everything.
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "MEMORYD_LOG_LEVEL")
	setString(&c.LogFile, "MEMORYD_LOG_FILE")

	setString(&c.Embedding.Provider, "MEMORYD_EMBEDDING_PROVIDER")
	setString(&c.Embedding.OllamaBaseURL, "MEMORYD_EMBEDDING_OLLAMA_BASE_URL")
	setString(&c.Embedding.OllamaModel, "MEMORYD_EMBEDDING_OLLAMA_MODEL")
	setString(&c.Embedding.APIKey, "MEMORYD_EMBEDDING_API_KEY")
	setString(&c.Embedding.BaseURL, "MEMORYD_EMBEDDING_BASE_URL")
	setString(&c.Embedding.Model, "MEMORYD_EMBEDDING_MODEL")
	setInt(&c.Embedding.Dimension, "MEMORYD_EMBEDDING_DIMENSION")
	setString(&c.Embedding.CacheDir, "MEMORYD_EMBEDDING_CACHE_DIR")

	setBool(&c.Extraction.Enabled, "MEMORYD_EXTRACTION_ENABLED")
	setString(&c.Extraction.Provider, "MEMORYD_EXTRACTION_PROVIDER")
	setString(&c.Extraction.APIKey, "MEMORYD_EXTRACTION_API_KEY")
	setString(&c.Extraction.Model, "MEMORYD_EXTRACTION_MODEL")

	setBool(&c.Consolidation.Enabled, "MEMORYD_CONSOLIDATION_ENABLED")
	setFloat(&c.Consolidation.SimilarityThreshold, "MEMORYD_CONSOLIDATION_SIMILARITY_THRESHOLD")
	setInt(&c.Consolidation.MaxConsolidationGroup, "MEMORYD_CONSOLIDATION_MAX_GROUP")

	setFloat(&c.Salience.RecencyLambda, "MEMORYD_SALIENCE_RECENCY_LAMBDA")
	setBool(&c.Salience.DebugScoring, "MEMORYD_SALIENCE_DEBUG_SCORING")

	setString(&c.Search.BM25Backend, "MEMORYD_SEARCH_BM25_BACKEND")

	setBool(&c.QueryIntelligence.ExpansionEnabled, "MEMORYD_QI_EXPANSION_ENABLED")
	setBool(&c.QueryIntelligence.RerankingEnabled, "MEMORYD_QI_RERANKING_ENABLED")
	setString(&c.QueryIntelligence.Provider, "MEMORYD_QI_PROVIDER")
	setString(&c.QueryIntelligence.APIKey, "MEMORYD_QI_API_KEY")
	setString(&c.QueryIntelligence.Model, "MEMORYD_QI_MODEL")
	setInt(&c.QueryIntelligence.LatencyBudgetMS, "MEMORYD_QI_LATENCY_BUDGET_MS")

	setBool(&c.Events.Enabled, "MEMORYD_EVENTS_ENABLED")
	setBool(&c.Events.Embedded, "MEMORYD_EVENTS_EMBEDDED")
	setString(&c.Events.URL, "MEMORYD_EVENTS_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}
