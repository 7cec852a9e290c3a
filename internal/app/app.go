// -----------------------------------------------------------------------
// Last Modified: Tuesday, 13th October 2026 4:05:12 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/handlers"
	"github.com/ternarybob/sicknote/internal/metrics"
	"github.com/ternarybob/sicknote/internal/queue"
	"github.com/ternarybob/sicknote/internal/services/analysis"
	"github.com/ternarybob/sicknote/internal/services/artifacts"
	"github.com/ternarybob/sicknote/internal/services/cache"
	"github.com/ternarybob/sicknote/internal/services/extractor"
	"github.com/ternarybob/sicknote/internal/services/limiter"
	"github.com/ternarybob/sicknote/internal/services/llm"
	"github.com/ternarybob/sicknote/internal/services/mailer"
	"github.com/ternarybob/sicknote/internal/services/pdf"
	"github.com/ternarybob/sicknote/internal/storage"
	"github.com/ternarybob/sicknote/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager *badger.Manager
	Metrics        *metrics.Collector

	// Shared infrastructure
	ArtifactCache *cache.Service
	AICache       *cache.Service
	Limiter       *limiter.Limiter
	Extractor     *extractor.Extractor

	// Domain services
	LLMService      *llm.Service
	AnalysisService *analysis.Service
	Renderer        *pdf.Service
	MailPool        *mailer.Pool
	Mailer          *mailer.Service
	ArtifactService *artifacts.Service

	// Job queue
	QueueBackend queue.Backend
	QueueManager *queue.Manager

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	SickLeaveHandler *handlers.SickLeaveHandler
	ArtifactHandler  *handlers.ArtifactHandler
	JobHandler       *handlers.JobHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
		Metrics:   metrics.NewCollector("sicknote"),
	}

	if err := app.initDatabase(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Start the queue only after handlers are registered so no job is
	// delivered to a type without a handler
	if err := app.QueueManager.Start(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start job queue: %w", err)
	}

	logger.Info().
		Str("llm_provider", app.LLMService.Provider()).
		Str("queue_backend", app.QueueBackend.Name()).
		Bool("smtp_configured", app.Mailer.IsConfigured()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger) and loads secrets
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Load variables from files (API keys, SMTP password)
	if _, err := a.StorageManager.LoadVariablesFromFiles(a.ctx, a.Config.Variables.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	// The SMTP password may live in the KV store rather than the config file
	if password, err := common.ResolveAPIKey(a.ctx, a.StorageManager.KeyValueStorage(), "smtp_password", a.Config.SMTP.Password); err == nil {
		a.Config.SMTP.Password = password
	}

	return nil
}

// initServices initializes all business services in dependency order:
// caches and limiter, text generation and analysis, renderer, mailer,
// queue, then the artifact pipeline whose handlers the queue runs.
func (a *App) initServices() error {
	var err error

	a.ArtifactCache, err = cache.NewService(a.Config.Cache.SweepInterval.Duration, a.Metrics, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create artifact cache: %w", err)
	}

	a.AICache, err = cache.NewService(a.Config.Cache.SweepInterval.Duration, nil, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create AI response cache: %w", err)
	}

	a.Limiter = limiter.NewLimiter(a.Config.Limiter.MaxConcurrent, a.Config.Limiter.WaitTimeout.Duration, a.Metrics, a.Logger)
	a.Extractor = extractor.NewExtractor(a.Metrics, a.Logger)

	a.LLMService, err = llm.NewLLMService(a.ctx, a.Config, a.StorageManager.KeyValueStorage(), a.AICache, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM service: %w", err)
	}

	records := a.StorageManager.SickLeaveStorage()
	a.AnalysisService = analysis.NewService(a.LLMService, records, a.Extractor, a.Logger)
	a.Renderer = pdf.NewService(a.Limiter, a.Config.Renderer, a.Metrics, a.Logger)

	a.MailPool = mailer.NewPool(a.Config.SMTP, a.Logger)
	a.Mailer = mailer.NewService(a.Config.SMTP, a.MailPool, a.Metrics, a.Logger)
	if !a.Mailer.IsConfigured() {
		a.Logger.Warn().Msg("SMTP not configured, email delivery will fail until smtp.host and smtp.from are set")
	}

	db, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("unexpected storage handle %T", a.StorageManager.DB())
	}
	a.QueueBackend, err = queue.NewBackend(a.Config.Queue, db.Badger(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create queue backend: %w", err)
	}
	a.QueueManager = queue.NewManager(a.QueueBackend, a.StorageManager.JobStorage(), a.Config.Queue, a.Metrics, a.Logger)

	a.ArtifactService = artifacts.NewService(
		records,
		a.AnalysisService,
		a.Renderer,
		a.ArtifactCache,
		a.Mailer,
		a.Config.Renderer.OutputDir,
		a.Config.Cache.TTL.Duration,
		a.Logger,
	)
	a.ArtifactService.RegisterJobs(a.QueueManager)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	records := a.StorageManager.SickLeaveStorage()

	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.SickLeaveHandler = handlers.NewSickLeaveHandler(records, a.AnalysisService, a.ArtifactService, a.Logger)
	a.ArtifactHandler = handlers.NewArtifactHandler(a.ArtifactService, a.QueueManager, a.Config.Server.PublicURL, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.QueueManager, a.QueueManager, a.StorageManager.JobStorage(), a.Logger)
}

// Close stops background work and releases resources in reverse start order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	// Stop the queue first: it drains in-flight jobs that use everything below
	if a.QueueManager != nil {
		if err := a.QueueManager.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop job queue")
		} else {
			a.Logger.Info().Msg("Job queue stopped")
		}
	}

	if a.Mailer != nil {
		if err := a.Mailer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close mailer")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		} else {
			a.Logger.Info().Msg("LLM service closed")
		}
	}

	for _, c := range []*cache.Service{a.ArtifactCache, a.AICache} {
		if c != nil {
			if err := c.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to close cache")
			}
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.StorageManager = nil
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
