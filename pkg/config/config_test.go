package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 10, cfg.Reason.MaxIterations)
	assert.Equal(t, 20, cfg.Reason.MaxContextMessages)
	assert.Equal(t, 20000, cfg.Reason.MaxTokensPerTask)
	assert.Equal(t, 10, cfg.Reason.HygieneInterval)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 1024, cfg.LLM.MaxTokensPerResp)
	assert.Equal(t, 30, cfg.LLM.RateLimitRPM)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "AUTO", cfg.Tools.ConfirmationMode)
	assert.Equal(t, 500, cfg.Tools.TruncateChars)
	assert.True(t, *cfg.Tools.SandboxMode)
	assert.False(t, cfg.Tools.SuperuserMode)
	assert.True(t, *cfg.Tools.RequireSudoConfirmation)
	assert.Equal(t, ".memory", cfg.Memory.DataDir)
	assert.Equal(t, ".errors", cfg.Memory.ErrorsDir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad confirmation mode", func(c *Config) { c.Tools.ConfirmationMode = "MAYBE" }},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -1 }},
		{"tiny window", func(c *Config) { c.Reason.MaxContextMessages = 2 }},
		{"missing workdir", func(c *Config) { c.Tools.WorkingDirectory = "/nonexistent/nowhere" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "json5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SetDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
llm:
  model: test-model
  api_key: file-key
reasoning:
  max_iterations: 5
tools:
  working_directory: ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	t.Setenv("PANDU_API_KEY", "env-key")
	t.Setenv("PANDU_MAX_TOKENS_PER_TASK", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, "env-key", cfg.LLM.APIKey, "environment wins over file")
	assert.Equal(t, 5, cfg.Reason.MaxIterations)
	assert.Equal(t, 5000, cfg.Reason.MaxTokensPerTask)
	assert.Equal(t, 20, cfg.Reason.MaxContextMessages, "defaults fill the rest")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestPipelineNilConfig(t *testing.T) {
	_, err := ProcessConfigPipeline(nil)
	assert.Error(t, err)
}
