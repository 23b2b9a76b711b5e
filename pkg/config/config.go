// Package config holds the validated runtime configuration. Loading
// follows a fixed pipeline: read YAML, apply environment overrides,
// set defaults, validate.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration consumed by the runtime.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Reason  ReasonConfig  `yaml:"reasoning"`
	Tools   ToolsConfig   `yaml:"tools"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig describes the chat/function-calling endpoint and the
// resource governor around it.
type LLMConfig struct {
	BaseURL             string  `yaml:"base_url"`
	APIKey              string  `yaml:"api_key"`
	Model               string  `yaml:"model"`
	Temperature         float64 `yaml:"temperature"`
	RecoveryTemperature float64 `yaml:"recovery_temperature"`
	MaxTokensPerResp    int     `yaml:"max_tokens_per_response"`
	TimeoutSeconds      int     `yaml:"api_timeout_seconds"`
	MaxRetries          int     `yaml:"api_max_retries"`
	RetryDelaySeconds   float64 `yaml:"api_retry_delay_seconds"`
	RateLimitRPM        int     `yaml:"rate_limit_rpm"`
}

func (c *LLMConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Model == "" {
		c.Model = "llama-3.3-70b-versatile"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.RecoveryTemperature == 0 {
		c.RecoveryTemperature = 0.1
	}
	if c.MaxTokensPerResp == 0 {
		c.MaxTokensPerResp = 1024
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelaySeconds == 0 {
		c.RetryDelaySeconds = 1.0
	}
	if c.RateLimitRPM == 0 {
		c.RateLimitRPM = 30
	}
}

func (c *LLMConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature)
	}
	if c.MaxTokensPerResp < 1 {
		return fmt.Errorf("max_tokens_per_response must be positive, got %d", c.MaxTokensPerResp)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("api_max_retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("rate_limit_rpm must be positive, got %d", c.RateLimitRPM)
	}
	return nil
}

// ReasonConfig bounds the reasoning loop.
type ReasonConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	MaxContextMessages int `yaml:"max_context_messages"`
	MaxTokensPerTask   int `yaml:"max_tokens_per_task"`
	HygieneInterval    int `yaml:"hygiene_interval_tasks"`
}

func (c *ReasonConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
	if c.MaxContextMessages == 0 {
		c.MaxContextMessages = 20
	}
	if c.MaxTokensPerTask == 0 {
		c.MaxTokensPerTask = 20000
	}
	if c.HygieneInterval == 0 {
		c.HygieneInterval = 10
	}
}

func (c *ReasonConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.MaxContextMessages < 4 {
		return fmt.Errorf("max_context_messages must be at least 4, got %d", c.MaxContextMessages)
	}
	if c.MaxTokensPerTask < 1 {
		return fmt.Errorf("max_tokens_per_task must be positive, got %d", c.MaxTokensPerTask)
	}
	if c.HygieneInterval < 1 {
		return fmt.Errorf("hygiene_interval_tasks must be positive, got %d", c.HygieneInterval)
	}
	return nil
}

// ToolsConfig controls the mediation layer: sandbox, confirmation and
// observation truncation.
type ToolsConfig struct {
	SandboxMode             *bool    `yaml:"sandbox_mode"`
	WorkingDirectory        string   `yaml:"working_directory"`
	AllowedExtensions       []string `yaml:"allowed_extensions"`
	BlockedPaths            []string `yaml:"blocked_paths"`
	MaxFileSizeMB           int      `yaml:"max_file_size_mb"`
	CommandWhitelist        []string `yaml:"command_whitelist"`
	CommandTimeoutSeconds   int      `yaml:"command_timeout_seconds"`
	ConfirmationMode        string   `yaml:"confirmation_mode"`
	ConfirmTimeoutSeconds   int      `yaml:"confirm_timeout_seconds"`
	TruncateChars           int      `yaml:"tool_output_truncate_chars"`
	SuperuserMode           bool     `yaml:"superuser_mode"`
	RequireSudoConfirmation *bool    `yaml:"require_sudo_confirmation"`
	SudoWhitelist           []string `yaml:"sudo_whitelist"`
	DangerousCommands       []string `yaml:"dangerous_commands_blocklist"`
}

func (c *ToolsConfig) SetDefaults() {
	if c.SandboxMode == nil {
		c.SandboxMode = BoolPtr(true)
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = "./"
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{
			".txt", ".md", ".json", ".yaml", ".yml", ".csv",
			".py", ".go", ".js", ".ts", ".html", ".css", ".sh",
		}
	}
	if len(c.BlockedPaths) == 0 {
		c.BlockedPaths = []string{"/etc", "/sys", "/proc", "/boot", "/dev"}
	}
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = 10
	}
	if len(c.CommandWhitelist) == 0 {
		c.CommandWhitelist = []string{
			"ls", "cat", "head", "tail", "grep", "find", "wc",
			"pwd", "echo", "date", "python3", "go", "git",
		}
	}
	if c.CommandTimeoutSeconds == 0 {
		c.CommandTimeoutSeconds = 300
	}
	if c.ConfirmationMode == "" {
		c.ConfirmationMode = "AUTO"
	}
	if c.ConfirmTimeoutSeconds == 0 {
		c.ConfirmTimeoutSeconds = 30
	}
	if c.TruncateChars == 0 {
		c.TruncateChars = 500
	}
	if c.RequireSudoConfirmation == nil {
		c.RequireSudoConfirmation = BoolPtr(true)
	}
	if len(c.DangerousCommands) == 0 {
		c.DangerousCommands = []string{
			"rm -rf /", "mkfs", "dd if=", ":(){", "shutdown", "reboot",
			"chmod -R 777 /", "> /dev/sda",
		}
	}
}

func (c *ToolsConfig) Validate() error {
	switch c.ConfirmationMode {
	case "YES", "NO", "AUTO":
	default:
		return fmt.Errorf("confirmation_mode must be YES, NO or AUTO, got %q", c.ConfirmationMode)
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be positive, got %d", c.MaxFileSizeMB)
	}
	if c.TruncateChars < 50 {
		return fmt.Errorf("tool_output_truncate_chars must be at least 50, got %d", c.TruncateChars)
	}
	if _, err := os.Stat(c.WorkingDirectory); err != nil {
		return fmt.Errorf("working_directory %q: %w", c.WorkingDirectory, err)
	}
	return nil
}

// MemoryConfig controls persistence and retrieval of the typed
// collections plus housekeeping limits.
type MemoryConfig struct {
	DataDir           string `yaml:"data_dir"`
	ErrorsDir         string `yaml:"errors_dir"`
	ContextDir        string `yaml:"context_dir"`
	ContextLog        *bool  `yaml:"context_log"`
	TopK              int    `yaml:"top_k"`
	MaxAgeDays        int    `yaml:"max_age_days"`
	MaxCollectionSize int    `yaml:"max_collection_size"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url"`
	EmbeddingAPIKey   string `yaml:"embedding_api_key"`
	EmbeddingModel    string `yaml:"embedding_model"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".memory"
	}
	if c.ErrorsDir == "" {
		c.ErrorsDir = ".errors"
	}
	if c.ContextDir == "" {
		c.ContextDir = ".context"
	}
	if c.ContextLog == nil {
		c.ContextLog = BoolPtr(true)
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 90
	}
	if c.MaxCollectionSize == 0 {
		c.MaxCollectionSize = 1000
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
}

func (c *MemoryConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.MaxAgeDays < 1 {
		return fmt.Errorf("max_age_days must be positive, got %d", c.MaxAgeDays)
	}
	if c.MaxCollectionSize < 1 {
		return fmt.Errorf("max_collection_size must be positive, got %d", c.MaxCollectionSize)
	}
	return nil
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Format {
	case "simple", "verbose":
		return nil
	default:
		return fmt.Errorf("logging format must be simple or verbose, got %q", c.Format)
	}
}

func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Reason.SetDefaults()
	c.Tools.SetDefaults()
	c.Memory.SetDefaults()
	c.Logging.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Reason.Validate(); err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto the config. Values from
// the environment win over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PANDU_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("PANDU_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("PANDU_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PANDU_EMBEDDING_API_KEY"); v != "" {
		c.Memory.EmbeddingAPIKey = v
	}
	if v := os.Getenv("PANDU_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PANDU_MAX_TOKENS_PER_TASK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reason.MaxTokensPerTask = n
		}
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, defaults and validation. A missing .env file is not an
// error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	return ProcessConfigPipeline(cfg)
}

// ProcessConfigPipeline applies env overrides, defaults and validation
// in that order.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.applyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// BoolPtr returns a pointer to b. Used for tri-state boolean config
// fields where absence differs from false.
func BoolPtr(b bool) *bool {
	return &b
}
