package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "valuation-backend/internal/auth"
	"valuation-backend/internal/gamma"
	"valuation-backend/internal/llm"
	"valuation-backend/internal/llm/gemini"
	"valuation-backend/internal/queue"
	"valuation-backend/internal/shared/config"
	"valuation-backend/internal/shared/server"
	"valuation-backend/internal/shared/storage/db"
	"valuation-backend/internal/shared/telemetry"
	"valuation-backend/internal/usage"
	"valuation-backend/internal/users"
	"valuation-backend/internal/valuations"
)

// AnalysisProcessor allows callers to override Task 1 processing for tests.
type AnalysisProcessor interface {
	Process(ctx context.Context, valuationID, requestID string) error
}

// PresentationRunner allows callers to override Task 2 processing for tests.
type PresentationRunner interface {
	Generate(ctx context.Context, valuationID string) error
}

// App holds shared dependencies for both the API and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Queue  queue.Client

	ValuationsRepo valuations.Repo
	UsersRepo      users.Repo

	UsageService      *usage.Service
	UsersService      *users.Service
	ValuationsService *valuations.Service
	Processor         AnalysisProcessor
	Presenter         PresentationRunner

	ValuationHandler *valuations.Handler
	UsageHandler     *usage.Handler
	UserHandler      *users.Handler
	GoogleAuth       *googleauth.GoogleService
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		ValuationHandler: app.ValuationHandler,
		UsageHandler:     app.UsageHandler,
		UserHandler:      app.UserHandler,
		GoogleAuth:       app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	var (
		valuationsRepo valuations.Repo
		usersRepo      users.Repo
		usageStore     usage.Store
	)
	if app.DB != nil {
		valuationsRepo = valuations.NewPGRepo(app.DB)
		usersRepo = users.NewPGRepo(app.DB)
		usageStore = usage.NewPGStore(app.DB, cfg.FreeUsageLimit)
	} else {
		valuationsRepo = valuations.NewMemoryRepo()
		usersRepo = users.NewMemoryRepo()
		usageStore = usage.NewMemoryStore(cfg.FreeUsageLimit)
	}

	usageSvc := usage.NewService(usageStore)
	userSvc := users.NewService(usersRepo)

	llmClient := llm.Client(llm.PlaceholderClient{})
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		geminiClient, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		llmClient = geminiClient
	} else if !isDevLike(cfg.Env) {
		return errors.New("GEMINI_API_KEY is required")
	}

	var presentationClient valuations.PresentationClient
	if strings.TrimSpace(cfg.GammaAPIKey) != "" {
		presentationClient = gamma.NewClient(cfg.GammaAPIKey, gamma.WithBaseURL(cfg.GammaBaseURL))
	}

	processor := &valuations.Processor{
		Repo:     valuationsRepo,
		Analyzer: valuations.NewAnalyzer(llmClient),
		Usage:    usageSvc,
		Users:    userSvc,
	}
	presenter := &valuations.Presenter{
		Repo:     valuationsRepo,
		Client:   presentationClient,
		Language: cfg.PresentationLanguage,
	}

	app.ValuationsRepo = valuationsRepo
	app.UsersRepo = usersRepo
	app.UsageService = usageSvc
	app.UsersService = userSvc
	app.Processor = processor
	app.Presenter = presenter

	queueClient, err := buildQueue(ctx, app)
	if err != nil {
		return err
	}
	app.Queue = queueClient
	processor.Queue = queueClient

	app.ValuationsService = valuations.NewService(valuationsRepo, usageSvc, queueClient)
	app.ValuationHandler = valuations.NewHandler(app.ValuationsService)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.UserHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleauth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
		userSvc,
	)

	return nil
}

func buildQueue(ctx context.Context, app *App) (queue.Client, error) {
	if strings.TrimSpace(app.Config.QueueURL) != "" {
		return queue.NewSQSClient(ctx)
	}
	if !isDevLike(app.Config.Env) {
		return nil, errors.New("VB_SQS_QUEUE_URL is required")
	}
	log.Printf("bootstrap: VB_SQS_QUEUE_URL empty; running tasks in-process")
	return &inlineQueue{app: app}, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// inlineQueue runs tasks in-process for local development. It follows the
// same dispatch and retry escalation the worker applies to SQS messages.
type inlineQueue struct {
	app *App
}

func (q *inlineQueue) Send(ctx context.Context, msg queue.Message) error {
	go func() {
		if msg.Delay > 0 {
			time.Sleep(msg.Delay)
		}
		bg := context.Background()
		switch msg.Task {
		case queue.TaskAnalyze:
			if err := q.app.Processor.Process(bg, msg.ValuationID, msg.RequestID); err != nil {
				telemetry.Error("inline.analyze_failed", map[string]any{
					"valuation_id": msg.ValuationID,
					"error":        err.Error(),
				})
			}
		case queue.TaskPresentation:
			q.runPresentation(bg, msg)
		default:
			telemetry.Error("inline.unknown_task", map[string]any{"task": msg.Task})
		}
	}()
	return nil
}

func (q *inlineQueue) runPresentation(ctx context.Context, msg queue.Message) {
	err := q.app.Presenter.Generate(ctx, msg.ValuationID)
	if err == nil {
		return
	}

	var retry *valuations.RetryablePresentationError
	if !errors.As(err, &retry) {
		telemetry.Error("inline.presentation_failed", map[string]any{
			"valuation_id": msg.ValuationID,
			"error":        err.Error(),
		})
		return
	}

	attempt := msg.Attempt
	if attempt < 1 {
		attempt = 1
	}
	if attempt > queue.MaxPresentationRetries {
		if failErr := q.app.ValuationsRepo.FailPresentation(ctx, msg.ValuationID); failErr != nil && !errors.Is(failErr, valuations.ErrStaleTransition) {
			telemetry.Error("inline.presentation_fail_update_failed", map[string]any{
				"valuation_id": msg.ValuationID,
				"error":        failErr.Error(),
			})
		}
		return
	}

	next := queue.NewPresentationMessage(msg.ValuationID, msg.RequestID, attempt+1)
	next.Delay = queue.BackoffDelay(attempt)
	_ = q.Send(ctx, next)
}
