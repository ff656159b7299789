package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vbonduro/tcmtongue/internal/config"
	"github.com/vbonduro/tcmtongue/internal/db"
	"github.com/vbonduro/tcmtongue/internal/logging"
	"github.com/vbonduro/tcmtongue/internal/metrics"
	"github.com/vbonduro/tcmtongue/internal/photostore/local"
	"github.com/vbonduro/tcmtongue/internal/service"
	"github.com/vbonduro/tcmtongue/internal/store"
	"github.com/vbonduro/tcmtongue/internal/vision"
	claudevision "github.com/vbonduro/tcmtongue/internal/vision/claude"
	geminivision "github.com/vbonduro/tcmtongue/internal/vision/gemini"
	ollamavision "github.com/vbonduro/tcmtongue/internal/vision/ollama"
	"github.com/vbonduro/tcmtongue/internal/web"
	"github.com/vbonduro/tcmtongue/internal/web/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	// The save directory is created once at startup.
	photoStg, err := local.NewLocalPhotoStore(cfg.SaveDir)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	generator, err := newGenerator(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize vision backend", "error", err)
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	analysisService := service.NewAnalysisService(
		store.NewRecordStore(database),
		generator,
		photoStg,
		service.Texts{Prompt: cfg.Prompt, BoilingInstructions: cfg.BoilingInstructions},
		metrics.New(reg),
		logger,
	)
	server := web.NewServer(analysisService, templates.FS, reg, logger)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vision.Generator, error) {
	switch cfg.VisionBackend {
	case "claude":
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel), nil
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaGenerator(cfg.OllamaHost, cfg.OllamaModel), nil
	default:
		logger.Info("using Gemini vision backend", "model", cfg.GeminiModel)
		return geminivision.NewGeminiGenerator(ctx, cfg.GoogleAPIKey, cfg.GeminiModel)
	}
}
