// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout bounds every single request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-assistant/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SourcesConfig holds settings for the academic source clients.
type SourcesConfig struct {
	HTTPConfig `yaml:",inline"`

	EnableArxiv           bool `json:"enable_arxiv" yaml:"enable_arxiv"`
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar"`
	EnableOpenAlex        bool `json:"enable_openalex" yaml:"enable_openalex"`
	EnablePubMed          bool `json:"enable_pubmed" yaml:"enable_pubmed"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// OpenAlexEmail is sent as mailto for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`

	// PubMedAPIKey raises the NCBI E-utilities rate limit.
	PubMedAPIKey string `json:"pubmed_api_key,omitempty" yaml:"pubmed_api_key,omitempty"`

	// RequestsPerSecond limits calls per source (0 disables limiting).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// Enabled returns the enabled sources in KnownSources order.
func (c SourcesConfig) Enabled() []SourceID {
	var out []SourceID
	for _, s := range KnownSources {
		if c.IsEnabled(s) {
			out = append(out, s)
		}
	}
	return out
}

// IsEnabled reports whether source s is switched on.
func (c SourcesConfig) IsEnabled(s SourceID) bool {
	switch s {
	case SourceArxiv:
		return c.EnableArxiv
	case SourceSemanticScholar:
		return c.EnableSemanticScholar
	case SourceOpenAlex:
		return c.EnableOpenAlex
	case SourcePubMed:
		return c.EnablePubMed
	}
	return false
}

// AIConfig holds shared settings for clients that call a Generative AI API.
type AIConfig struct {
	// Provider selects the implementation: "claude" or "ollama" for
	// generation, "ollama" or "openai" for embeddings.
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for hosted APIs.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint (required for Ollama).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout bounds a single call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// GenerationConfig configures the language-generation collaborator.
type GenerationConfig struct {
	AIConfig `yaml:",inline"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	AIConfig `yaml:",inline"`

	// BatchSize is the number of texts per provider call.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Concurrency caps in-flight batch calls.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// CacheSize is the in-memory LRU capacity (0 disables the cache).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// CachePath is an optional SQLite file that persists embeddings across runs.
	CachePath string `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`

	// RequestsPerSecond limits provider calls (0 disables limiting).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// PlannerConfig configures query planning.
type PlannerConfig struct {
	// DefaultMaxPapers is the paper budget of the fallback plan.
	DefaultMaxPapers int `json:"default_max_papers" yaml:"default_max_papers"`

	// MaxTokens bounds the planning completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// FetchConfig configures the concurrent fetch stage.
type FetchConfig struct {
	// Attempts is the number of tries per source call (default 2).
	Attempts int `json:"attempts" yaml:"attempts"`

	// Backoff is the delay before the second attempt; it doubles per attempt.
	Backoff time.Duration `json:"backoff" yaml:"backoff"`

	// Timeout bounds a single source call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// WidenOnEmpty retries the remaining enabled sources when every planned
	// source returned nothing.
	WidenOnEmpty bool `json:"widen_on_empty" yaml:"widen_on_empty"`
}

// Hybrid backend identifiers.
const (
	HybridSQLite   = "sqlite"
	HybridVespa    = "vespa"
	HybridPgvector = "pgvector"
	HybridNone     = "none"
)

// RankConfig configures similarity ranking.
type RankConfig struct {
	// HybridBackend selects the hybrid implementation: sqlite, vespa,
	// pgvector, or none (always use cosine).
	HybridBackend string `json:"hybrid_backend" yaml:"hybrid_backend"`

	// HybridTimeout bounds the health probe and the hybrid ranking call.
	HybridTimeout time.Duration `json:"hybrid_timeout" yaml:"hybrid_timeout"`

	// LexicalWeight and VectorWeight blend the two hybrid scores.
	LexicalWeight float64 `json:"lexical_weight" yaml:"lexical_weight"`
	VectorWeight  float64 `json:"vector_weight" yaml:"vector_weight"`

	// TopK keeps the best K ranked papers (0 keeps all).
	TopK int `json:"top_k" yaml:"top_k"`

	// VespaURL is the Vespa container endpoint (e.g. "http://vespa:8080").
	VespaURL string `json:"vespa_url,omitempty" yaml:"vespa_url,omitempty"`

	// VespaConfigURL is the config server used for health checks.
	VespaConfigURL string `json:"vespa_config_url,omitempty" yaml:"vespa_config_url,omitempty"`

	// PgvectorDSN is the PostgreSQL connection string for the pgvector backend.
	PgvectorDSN string `json:"pgvector_dsn,omitempty" yaml:"pgvector_dsn,omitempty"`
}

// ThemeConfig configures clustering and theme naming.
type ThemeConfig struct {
	// MinPapers is the smallest ranked set that is clustered.
	MinPapers int `json:"min_papers" yaml:"min_papers"`

	MinClusters   int `json:"min_clusters" yaml:"min_clusters"`
	MaxClusters   int `json:"max_clusters" yaml:"max_clusters"`
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// Seed fixes k-means++ initialization within a run.
	Seed int64 `json:"seed" yaml:"seed"`

	// NameMaxTokens bounds each theme naming completion.
	NameMaxTokens int `json:"name_max_tokens" yaml:"name_max_tokens"`
}

// WriterConfig configures report synthesis.
type WriterConfig struct {
	// MaxTokens bounds the report completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// AbstractWords truncates abstracts in the full prompt.
	AbstractWords int `json:"abstract_words" yaml:"abstract_words"`

	// ShortPapers, ShortThemes and ShortAbstractWords shape the retry prompt.
	ShortPapers        int `json:"short_papers" yaml:"short_papers"`
	ShortThemes        int `json:"short_themes" yaml:"short_themes"`
	ShortAbstractWords int `json:"short_abstract_words" yaml:"short_abstract_words"`
}

// Config groups all stage configurations for the pipeline.
type Config struct {
	Sources    SourcesConfig    `json:"sources" yaml:"sources"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Planner    PlannerConfig    `json:"planner" yaml:"planner"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch"`
	Rank       RankConfig       `json:"rank" yaml:"rank"`
	Themes     ThemeConfig      `json:"themes" yaml:"themes"`
	Writer     WriterConfig     `json:"writer" yaml:"writer"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Sources: SourcesConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   15 * time.Second,
				UserAgent: "research-assistant/0.1",
			},
			EnableArxiv:           true,
			EnableSemanticScholar: true,
			EnableOpenAlex:        true,
			RequestsPerSecond:     1,
		},
		Generation: GenerationConfig{AIConfig: AIConfig{
			Provider: "claude",
			Model:    "claude-sonnet-4-5-20250929",
			Timeout:  120 * time.Second,
		}},
		Embedding: EmbeddingConfig{
			AIConfig: AIConfig{
				Provider: "ollama",
				Model:    "nomic-embed-text",
				BaseURL:  "http://localhost:11434",
				Timeout:  30 * time.Second,
			},
			BatchSize:   25,
			Concurrency: 4,
			CacheSize:   4096,
		},
		Planner: PlannerConfig{
			DefaultMaxPapers: 15,
			MaxTokens:        512,
		},
		Fetch: FetchConfig{
			Attempts:     2,
			Backoff:      500 * time.Millisecond,
			Timeout:      20 * time.Second,
			WidenOnEmpty: true,
		},
		Rank: RankConfig{
			HybridBackend:  HybridSQLite,
			HybridTimeout:  5 * time.Second,
			LexicalWeight:  0.5,
			VectorWeight:   0.5,
			TopK:           10,
			VespaURL:       "http://localhost:8080",
			VespaConfigURL: "http://localhost:19071",
		},
		Themes: ThemeConfig{
			MinPapers:     4,
			MinClusters:   2,
			MaxClusters:   4,
			MaxIterations: 20,
			Seed:          42,
			NameMaxTokens: 256,
		},
		Writer: WriterConfig{
			MaxTokens:          4000,
			AbstractWords:      200,
			ShortPapers:        5,
			ShortThemes:        2,
			ShortAbstractWords: 60,
		},
	}
}
