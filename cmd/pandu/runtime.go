package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adiwardana/pandu/pkg/config"
	"github.com/adiwardana/pandu/pkg/errormem"
	"github.com/adiwardana/pandu/pkg/httpclient"
	"github.com/adiwardana/pandu/pkg/llm"
	"github.com/adiwardana/pandu/pkg/logger"
	"github.com/adiwardana/pandu/pkg/memory"
	"github.com/adiwardana/pandu/pkg/metrics"
	"github.com/adiwardana/pandu/pkg/monitor"
	"github.com/adiwardana/pandu/pkg/reasoner"
	"github.com/adiwardana/pandu/pkg/rules"
	"github.com/adiwardana/pandu/pkg/session"
	"github.com/adiwardana/pandu/pkg/tools"
	"github.com/adiwardana/pandu/pkg/vector"
)

// appRuntime bundles the wired components for the commands.
type appRuntime struct {
	cfg      *config.Config
	store    vector.Store
	engine   *rules.Engine
	errors   *errormem.Store
	manager  *memory.Manager
	session  *session.Session
	audit    *reasoner.AuditLog
	registry *tools.Registry
	cleanup  func()
}

// loadConfig reads the config file and applies CLI overrides before
// validation.
func loadConfig(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	return cfg, nil
}

// initLogging configures the process logger from config and flags.
func initLogging(cli *CLI, cfg *config.Config) (func(), error) {
	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, close_, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		cleanup = close_
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), output, cfg.Logging.Format)
	return cleanup, nil
}

// buildRuntime wires the full component graph. asker may be nil for
// non-interactive invocations; a non-empty confirmOverride replaces
// the configured confirmation mode.
func buildRuntime(cli *CLI, asker tools.Asker, confirmOverride string) (*appRuntime, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}
	if confirmOverride != "" {
		cfg.Tools.ConfirmationMode = confirmOverride
	}
	logCleanup, err := initLogging(cli, cfg)
	if err != nil {
		return nil, err
	}
	log := logger.Get()

	// Semantic index only when an embedding key is configured; the
	// store falls back to text matching otherwise.
	var index vector.Index
	if cfg.Memory.EmbeddingAPIKey != "" {
		baseURL := cfg.Memory.EmbeddingBaseURL
		if baseURL == "" {
			baseURL = cfg.LLM.BaseURL
		}
		index, err = vector.NewChromemIndex(
			filepath.Join(cfg.Memory.DataDir, "chromem"),
			baseURL, cfg.Memory.EmbeddingAPIKey, cfg.Memory.EmbeddingModel)
		if err != nil {
			log.Warn("semantic index unavailable, using text matching", "error", err)
			index = nil
		}
	}

	store, err := vector.NewFileStore(cfg.Memory.DataDir, index)
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	engine, err := rules.NewEngine(filepath.Join(cfg.Memory.DataDir, "rules.json"))
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	errStore, err := errormem.NewStore(cfg.Memory.ErrorsDir, store)
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("open error memory: %w", err)
	}

	sandbox, err := tools.NewSandbox(&cfg.Tools)
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("init sandbox: %w", err)
	}

	client := llm.NewClient(&cfg.LLM)
	policy := tools.NewConfirmPolicy(cfg.Tools.ConfirmationMode, cfg.Tools.ConfirmTimeoutSeconds, asker)
	registry := tools.NewRegistry(policy, errStore, cfg.Tools.TruncateChars)

	webClient := httpclient.New()
	builtins := []tools.Tool{
		tools.NewReadFileTool(sandbox),
		tools.NewWriteFileTool(sandbox),
		tools.NewCommandTool(sandbox, cfg.Tools.CommandTimeoutSeconds),
		tools.NewWebSearchTool(webClient),
		tools.NewGenerateTool(sandbox, llm.NewGenerator(client, &cfg.LLM)),
		tools.NewPentestTool(cfg.Tools.CommandTimeoutSeconds),
	}
	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			logCleanup()
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	manager := memory.NewManager(store, engine, cfg.Memory.MaxCollectionSize)
	retriever := memory.NewRetriever(store, engine, cfg.Memory.TopK)
	audit := reasoner.NewAuditLog(cfg.Memory.ContextDir, *cfg.Memory.ContextLog)
	housekeeper := monitor.NewHousekeeper(store, errStore,
		cfg.Reason.HygieneInterval, cfg.Memory.MaxAgeDays, cfg.Memory.MaxCollectionSize)

	r := reasoner.New(client, registry, engine, retriever, manager, audit, housekeeper, reasoner.Options{
		MaxIterations:      cfg.Reason.MaxIterations,
		MaxContextMessages: cfg.Reason.MaxContextMessages,
		MaxTokensPerTask:   cfg.Reason.MaxTokensPerTask,
		MaxTokensPerResp:   cfg.LLM.MaxTokensPerResp,
		Temperature:        cfg.LLM.Temperature,
		RecoveryTemp:       cfg.LLM.RecoveryTemperature,
		Model:              cfg.LLM.Model,
		WorkDir:            sandbox.WorkDir(),
	})

	return &appRuntime{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		errors:   errStore,
		manager:  manager,
		session:  session.New(r),
		audit:    audit,
		registry: registry,
		cleanup: func() {
			if err := store.Close(); err != nil {
				log.Warn("memory store close failed", "error", err)
			}
			logCleanup()
		},
	}, nil
}

// serveMetrics exposes the Prometheus registry on addr, best effort.
func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Get().Warn("metrics endpoint stopped", "addr", addr, "error", err)
		}
	}()
}
