package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, "ragcore.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Store.PoolSize)
	assert.Equal(t, 5000, cfg.Store.AcquireTimeoutMS)
	assert.Equal(t, 65536, cfg.Store.CacheSizeKB)

	assert.Equal(t, 1500, cfg.Chunk.MaxChars)
	assert.Equal(t, 200, cfg.Chunk.OverlapChars)

	assert.Equal(t, "cosine", cfg.ANN.Metric)

	assert.Equal(t, 1.2, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)

	assert.Equal(t, 60, cfg.Retrieve.RRFConstant)
	assert.Equal(t, 0.5, cfg.Retrieve.BM25Weight)
	assert.Equal(t, 0.5, cfg.Retrieve.VectorWeight)
	assert.Equal(t, 10, cfg.Retrieve.DefaultTopK)

	assert.Equal(t, 256, cfg.Tokenizer.CacheSize)

	assert.Equal(t, 100, cfg.Buffer.Threshold)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.WriteToStderr)
}

func TestConfig_RetrieveWeightsSumToOne(t *testing.T) {
	cfg := NewConfig()
	sum := cfg.Retrieve.BM25Weight + cfg.Retrieve.VectorWeight
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.5, cfg.Retrieve.BM25Weight)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
retrieve:
  bm25_weight: 0.4
  vector_weight: 0.6
  rrf_constant: 100
chunk:
  max_chars: 2000
`
	err := os.WriteFile(filepath.Join(tmpDir, ".ragcore.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Retrieve.BM25Weight)
	assert.Equal(t, 0.6, cfg.Retrieve.VectorWeight)
	assert.Equal(t, 100, cfg.Retrieve.RRFConstant)
	assert.Equal(t, 2000, cfg.Chunk.MaxChars)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
store:
  path: custom.db
`
	err := os.WriteFile(filepath.Join(tmpDir, ".ragcore.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.Store.Path)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := "version: 1\nstore:\n  path: from-yaml.db\n"
	ymlContent := "version: 1\nstore:\n  path: from-yml.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".ragcore.yaml"), []byte(yamlContent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".ragcore.yml"), []byte(ymlContent), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "from-yaml.db", cfg.Store.Path)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := "version: 1\nretrieve:\n  bm25_weight: [invalid yaml syntax\n"
	err := os.WriteFile(filepath.Join(tmpDir, ".ragcore.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_EnvVarOverridesStorePath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RAGCORE_STORE_PATH", "/tmp/env-override.db")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-override.db", cfg.Store.Path)
}

func TestLoad_EnvVarOverridesRRFConstant(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "version: 1\nretrieve:\n  rrf_constant: 100\n"
	err := os.WriteFile(filepath.Join(tmpDir, ".ragcore.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("RAGCORE_RRF_CONSTANT", "80")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Retrieve.RRFConstant)
}

func TestLoad_EnvVarOverridesWeights(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "version: 1\nretrieve:\n  bm25_weight: 0.4\n  vector_weight: 0.6\n"
	err := os.WriteFile(filepath.Join(tmpDir, ".ragcore.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("RAGCORE_BM25_WEIGHT", "0.5")
	t.Setenv("RAGCORE_VECTOR_WEIGHT", "0.5")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Retrieve.BM25Weight)
	assert.Equal(t, 0.5, cfg.Retrieve.VectorWeight)
}

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetUserConfigPath()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "ragcore", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	path := GetUserConfigPath()

	expected := filepath.Join(customConfig, "ragcore", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	assert.False(t, UserConfigExists())
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	ragcoreDir := filepath.Join(configDir, "ragcore")
	require.NoError(t, os.MkdirAll(ragcoreDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ragcoreDir, "config.yaml"), []byte("version: 1"), 0o644))

	assert.True(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	ragcoreDir := filepath.Join(configDir, "ragcore")
	require.NoError(t, os.MkdirAll(ragcoreDir, 0o755))
	userConfig := "version: 1\nstore:\n  pool_size: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(ragcoreDir, "config.yaml"), []byte(userConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Store.PoolSize)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	ragcoreDir := filepath.Join(configDir, "ragcore")
	require.NoError(t, os.MkdirAll(ragcoreDir, 0o755))
	userConfig := "version: 1\nstore:\n  pool_size: 8\n  path: user.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(ragcoreDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := "version: 1\nstore:\n  path: project.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".ragcore.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "project.db", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Store.PoolSize)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("RAGCORE_STORE_PATH", "env.db")

	ragcoreDir := filepath.Join(configDir, "ragcore")
	require.NoError(t, os.MkdirAll(ragcoreDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ragcoreDir, "config.yaml"), []byte("version: 1\nstore:\n  path: user.db\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".ragcore.yaml"), []byte("version: 1\nstore:\n  path: project.db\n"), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Store.Path)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	ragcoreDir := filepath.Join(configDir, "ragcore")
	require.NoError(t, os.MkdirAll(ragcoreDir, 0o755))
	invalidConfig := "version: 1\nstore:\n  path: [invalid yaml\n"
	require.NoError(t, os.WriteFile(filepath.Join(ragcoreDir, "config.yaml"), []byte(invalidConfig), 0o644))

	cfg, err := Load(projectDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieve.BM25Weight = 0.3
	cfg.Retrieve.VectorWeight = 0.3

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestValidate_RejectsOverlapGreaterThanMaxChars(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunk.OverlapChars = cfg.Chunk.MaxChars + 1

	err := cfg.Validate()

	require.Error(t, err)
}

func TestValidate_RejectsUnsupportedMetric(t *testing.T) {
	cfg := NewConfig()
	cfg.ANN.Metric = "euclidean"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cosine")
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.yaml")
	cfg := NewConfig()
	cfg.Store.Path = "written.db"

	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written.db")
}
