// Package app wires configuration into a ready-to-use processing stack for
// the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/billing-parser/internal/async"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/export"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
	"github.com/joseph-ayodele/billing-parser/internal/ingest"
	"github.com/joseph-ayodele/billing-parser/internal/metrics"
	"github.com/joseph-ayodele/billing-parser/internal/ocr"
	"github.com/joseph-ayodele/billing-parser/internal/output"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
	"github.com/joseph-ayodele/billing-parser/internal/repository"
)

type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	DB        *repository.DB
	Runs      repository.RunRepository
	Metrics   *metrics.Metrics
	Processor *pipeline.Processor
	Loader    *ingest.Loader
	Export    *export.Service
}

// InitDatabase opens and migrates the run store. inmem forces a private
// in-memory sqlite database.
func InitDatabase(ctx context.Context, cfg common.DatabaseConfig, inmem bool, logger *slog.Logger) (*repository.DB, error) {
	rc := repository.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
	if inmem {
		rc.Driver = "sqlite"
		rc.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		logger.Info("using in-memory sqlite database")
	}
	db, err := repository.Open(ctx, rc, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Build assembles the processor and its dependencies. reg may be nil to skip
// metrics.
func Build(ctx context.Context, cfg *common.Config, inmem bool, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := InitDatabase(ctx, cfg.Database, inmem, logger)
	if err != nil {
		return nil, err
	}
	runs := repository.NewRunRepository(db, logger)

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	validator, err := output.NewValidator()
	if err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("payload schema: %w", err)
	}

	engine := ocr.NewTesseract(ocr.Config{
		Tesseract:     cfg.OCR.TesseractBin,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		PSM:           6,
		HeicConverter: cfg.OCR.HeicConverter,
		Preprocess:    true,
		MaxWidth:      2400,
	}, logger)
	recognizer := extract.NewOCRAdapter(engine, cfg.OCR.Workers, logger)
	decoder := extract.NewDecoder(ocr.NewPDFText(cfg.OCR.PdftotextBin, nil, logger), logger)

	proc := pipeline.NewProcessor(logger, pipeline.NewStages(recognizer, decoder, logger), runs, validator, m, pipeline.Options{
		StepBound:   cfg.Pipeline.StepBound,
		EventBuffer: cfg.Pipeline.EventBuffer,
		Verbose:     cfg.Pipeline.Verbose,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Runs:      runs,
		Metrics:   m,
		Processor: proc,
		Loader:    ingest.NewLoader(cfg.Storage.UploadDir, logger),
		Export:    export.NewService(runs, logger),
	}, nil
}

// NewQueue starts a worker pool over the app's processor.
func (a *App) NewQueue() *async.ProcessorQueue {
	return async.NewProcessorQueue(a.Processor, a.Logger,
		async.WithWorkers(a.Config.Pipeline.QueueWorkers),
		async.WithQueueSize(a.Config.Pipeline.QueueSize),
		async.WithProcessTimeout(a.Config.Pipeline.ProcessTimeout),
	)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close(a.Logger)
	}
}
