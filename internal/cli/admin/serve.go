package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/converso/internal/api/handlers"
	"github.com/cloo-solutions/converso/internal/config"
	"github.com/cloo-solutions/converso/internal/database"
	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/jobs"
	"github.com/cloo-solutions/converso/internal/openai"
	"github.com/cloo-solutions/converso/internal/repository"
	"github.com/cloo-solutions/converso/internal/server"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/cloo-solutions/converso/internal/telemetry"
	"github.com/cloo-solutions/converso/internal/whatsapp"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant server",
		Long:  "Start the converso webhook and admin API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	correspondentRepo := repository.NewCorrespondentRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var openaiClient *openai.Client
	if cfg.HasOpenAI() {
		openaiClient = openai.NewClientWithConfig(openai.Config{
			APIKey:    cfg.OpenAIAPIKey,
			ChatModel: cfg.ChatModel,
			Timeout:   cfg.OpenAITimeout,
		})
	} else {
		log.Println("OPENAI_API_KEY not set: embedding and generation degrade to fallbacks")
	}

	var embedder service.EmbeddingClient
	var completer service.CompletionClient
	if openaiClient != nil {
		embedder = openaiClient
		completer = openaiClient
	} else {
		embedder = unavailableAI{}
		completer = unavailableAI{}
	}

	knowledgeSvc := service.NewKnowledgeService(chunkRepo, embedder, txRunner)
	intentSvc := service.NewIntentService(embedder, service.DefaultIntentCatalog(), cfg.IntentThreshold, cfg.IntentFallback)
	profileSvc := service.NewProfileService(correspondentRepo, completer, domain.DefaultFieldThresholds())
	answerSvc := service.NewAnswerService(completer, service.PersonaPolicy{
		Name:         cfg.PersonaName,
		AllowHandoff: cfg.PersonaAllowHandoff,
		Personalize:  cfg.PersonaPersonalize,
		IdentityLine: cfg.PersonaIdentityLine,
	})

	var deliverySvc *service.DeliveryService
	if cfg.HasWhatsApp() {
		waClient := whatsapp.NewClient(whatsapp.Config{
			AccessToken:   cfg.WAAccessToken,
			PhoneNumberID: cfg.WAPhoneNumberID,
			APIVersion:    cfg.GraphAPIVersion,
			Timeout:       cfg.WATimeout,
		})
		deliverySvc = service.NewDeliveryService(waClient, cfg.DeliveryMaxAttempts, cfg.DeliveryInitialBackoff)
	} else {
		log.Println("WhatsApp credentials not set: answers are logged but not delivered")
	}

	pipelineSvc := service.NewPipelineService(
		profileSvc, intentSvc, knowledgeSvc, answerSvc, deliverySvc,
		messageRepo, embedder, cfg.RetrievalK,
	)

	// Centroids are computed once at startup and shared read-only.
	var embedWorker *jobs.Worker
	if cfg.HasOpenAI() {
		if err := intentSvc.Rebuild(ctx); err != nil {
			return fmt.Errorf("failed to build intent centroids: %w", err)
		}
		log.Printf("intent centroids built for %d intents", len(intentSvc.Catalog()))

		sweep := jobs.NewEmbeddingSweep(knowledgeSvc, cfg.EmbedBatchLimit)
		embedWorker = jobs.NewWorker(sweep, cfg.EmbedPollInterval)
		go embedWorker.Start(ctx)
		log.Println("embedding sweep started")
	}

	routerCfg := server.RouterConfig{
		AdminToken:           cfg.AdminToken,
		WebhookHandler:       handlers.NewWebhookHandler(pipelineSvc, cfg.WAVerifyToken, cfg.HasOpenAI()),
		KnowledgeHandler:     handlers.NewKnowledgeHandler(knowledgeSvc),
		MessageHandler:       handlers.NewMessageHandler(pipelineSvc),
		CorrespondentHandler: handlers.NewCorrespondentHandler(profileSvc),
		ProcessHandler:       handlers.NewProcessHandler(pipelineSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if embedWorker != nil {
		embedWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// unavailableAI stands in when no OpenAI key is configured so dependent
// stages degrade instead of dereferencing nil.
type unavailableAI struct{}

func (unavailableAI) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func (unavailableAI) Complete(ctx context.Context, system string, messages []openai.ChatMessage) (string, error) {
	return "", domain.ErrGenerationUnavailable
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
