package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.True(t, cfg.Extraction.Enabled)
	assert.Equal(t, 1500, cfg.Extraction.MaxContentChars)
	assert.True(t, cfg.Consolidation.Enabled)
	assert.Equal(t, 0.92, cfg.Consolidation.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Consolidation.MaxConsolidationGroup)
	assert.Equal(t, 0.25, cfg.Salience.RecencyWeight)
	assert.Equal(t, 0.15, cfg.Salience.AccessWeight)
	assert.Equal(t, 0.45, cfg.Salience.SemanticWeight)
	assert.Equal(t, 0.15, cfg.Salience.ReinforcementWeight)
	assert.Equal(t, 0.01, cfg.Salience.RecencyLambda)
	assert.Equal(t, "native", cfg.Search.BM25Backend)
	assert.False(t, cfg.QueryIntelligence.ExpansionEnabled)
	assert.False(t, cfg.QueryIntelligence.RerankingEnabled)
	assert.Equal(t, 2000, cfg.QueryIntelligence.LatencyBudgetMS)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMORYD_LOG_LEVEL", "debug")
	t.Setenv("MEMORYD_EMBEDDING_PROVIDER", "remote")
	t.Setenv("MEMORYD_EMBEDDING_DIMENSION", "1536")
	t.Setenv("MEMORYD_CONSOLIDATION_ENABLED", "false")
	t.Setenv("MEMORYD_CONSOLIDATION_SIMILARITY_THRESHOLD", "0.85")
	t.Setenv("MEMORYD_QI_EXPANSION_ENABLED", "true")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ProviderRemote, cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.False(t, cfg.Consolidation.Enabled)
	assert.Equal(t, 0.85, cfg.Consolidation.SimilarityThreshold)
	assert.True(t, cfg.QueryIntelligence.ExpansionEnabled)
}

func TestDatabaseURLPrecedence(t *testing.T) {
	t.Setenv("MEMORYD_DATABASE_URL", "postgres://prefixed/db")
	t.Setenv("DATABASE_URL", "postgres://standard/db")

	cfg := Default()
	cfg.applyEnv()
	assert.Equal(t, "postgres://standard/db", cfg.DatabaseURL)
}

func TestMalformedEnvValuesIgnored(t *testing.T) {
	t.Setenv("MEMORYD_EMBEDDING_DIMENSION", "not-a-number")
	t.Setenv("MEMORYD_CONSOLIDATION_ENABLED", "maybe")

	cfg := Default()
	cfg.applyEnv()
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.True(t, cfg.Consolidation.Enabled)
}

func TestLoadTOMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `
log_level = "warn"

[embedding]
provider = "remote"
model = "text-embedding-3-large"

[salience]
recency_lambda = 0.02
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ProviderRemote, cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 0.02, cfg.Salience.RecencyLambda)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.92, cfg.Consolidation.SimilarityThreshold)
}
