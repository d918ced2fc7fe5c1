package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/chain"
	"github.com/synthara/forge-api/internal/config"
	"github.com/synthara/forge-api/internal/ensemble"
	"github.com/synthara/forge-api/internal/generation"
	"github.com/synthara/forge-api/internal/handlers"
	"github.com/synthara/forge-api/internal/middleware"
	"github.com/synthara/forge-api/internal/migration"
	"github.com/synthara/forge-api/internal/provider"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
	"github.com/synthara/forge-api/internal/routes"
	"github.com/synthara/forge-api/internal/storage"
	"github.com/synthara/forge-api/internal/temporal"
	"github.com/synthara/forge-api/internal/temporal/activities"
	"github.com/synthara/forge-api/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
	hub            *realtime.Hub
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewLoggerAdapter(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort: cfg.TemporalURL,
		Logger:   temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Realtime hub with channel authorization.
	jobRepo := repository.NewJobRepository(db)
	datasetRepo := repository.NewDatasetRepository(db)
	authorizer := realtime.NewAuthorizer(jobRepo, datasetRepo)
	hub := realtime.NewHub(authorizer, realtime.NewBus(), logger)

	// Create the application instance.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
		hub:            hub,
	}

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Start the chain event relay when configured.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	app.startChainRelay(relayCtx, logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	jobRepo := repository.NewJobRepository(app.db)
	datasetRepo := repository.NewDatasetRepository(app.db)
	curveRepo := repository.NewBondingCurveRepository(app.db)
	userRepo := repository.NewUserRepository(app.db)

	queue := temporal.NewJobQueue(app.temporalClient, logger)

	authHandler := handlers.NewAuthHandler(userRepo, app.config.JWTSecret, logger)
	generationHandler := handlers.NewGenerationHandler(jobRepo, queue, app.hub, logger)
	datasetHandler := handlers.NewDatasetHandler(datasetRepo, curveRepo, logger)
	realtimeHandler := handlers.NewRealtimeHandler(authHandler, app.hub, logger)

	return routes.NewRouter(authHandler, generationHandler, datasetHandler, realtimeHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	store, err := storage.NewMinIOStore(app.config.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create object storage client")
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare artifact bucket")
	}

	adapters := []provider.Adapter{
		provider.NewOpenAIAdapter(app.config.Providers.OpenAIAPIKey, logger),
		provider.NewAnthropicAdapter(app.config.Providers.AnthropicAPIKey, logger),
		provider.NewGeminiAdapter(app.config.Providers.GeminiAPIKey, logger),
	}

	jobRepo := repository.NewJobRepository(app.db)
	pipeline := generation.NewPipeline(generation.PipelineConfig{
		Jobs:         jobRepo,
		Datasets:     repository.NewDatasetRepository(app.db),
		Adapters:     adapters,
		Ensembler:    ensemble.NewCoordinator(logger, adapters...),
		Validator:    generation.NewHeuristicValidator(),
		Compliance:   generation.NewStandardsChecker(),
		Retriever:    generation.NewDocumentRetriever(repository.NewKnowledgeRepository(app.db)),
		Store:        store,
		Notifier:     app.hub,
		Logger:       logger,
		StageTimeout: app.config.Generation.StageTimeout,
		ResultURLTTL: app.config.Generation.ResultURLTTL,
	})

	activityImpl := &activities.Activities{Pipeline: pipeline}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{
		MaxConcurrentActivityExecutionSize: app.config.Generation.WorkerConcurrency,
	})

	w.RegisterWorkflow(workflows.GenerationWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startChainRelay mirrors bonding-curve contract events into the database.
// Disabled deployments simply skip it.
func (app *application) startChainRelay(ctx context.Context, logger zerolog.Logger) {
	if !app.config.Chain.Enabled {
		logger.Info().Msg("Chain relay disabled")
		return
	}

	ethClient, err := ethclient.DialContext(ctx, app.config.Chain.RPCURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}

	relay, err := chain.NewRelay(
		ethClient,
		repository.NewBondingCurveRepository(app.db),
		app.hub,
		app.config.Chain.RescanInterval,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create chain relay")
	}

	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Chain relay stopped")
		}
	}()
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
