package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"acadgen/internal/auth"
	"acadgen/internal/cache"
	"acadgen/internal/config"
	"acadgen/internal/dispatch"
	"acadgen/internal/logging"
	"acadgen/internal/middleware"
	"acadgen/internal/models"
	"acadgen/internal/orchestrator"
	"acadgen/internal/providers"
	"acadgen/internal/queue"
	"acadgen/internal/quota"
	"acadgen/internal/ratelimit"
	"acadgen/internal/recorder"
	"acadgen/internal/storage"
)

// GenerationService is the orchestrator surface the HTTP layer needs.
type GenerationService interface {
	Summarize(ctx context.Context, actor orchestrator.Actor, sourceRef string, maxWords int) (*orchestrator.Outcome, error)
	GenerateQuestions(ctx context.Context, actor orchestrator.Actor, sourceRef string, qt models.QuestionType, count int) (*orchestrator.Outcome, error)
	AskQuestion(ctx context.Context, actor orchestrator.Actor, sourceRef, question string) (*orchestrator.Outcome, error)
	Poll(ctx context.Context, requestID string) (*orchestrator.Outcome, error)
}

// UsageReader serves usage reports. Satisfied by storage.UsageRepository.
type UsageReader interface {
	ListByActor(ctx context.Context, actorID string, limit int) ([]models.UsageRecord, error)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Generator   GenerationService
	Usage       UsageReader
	Recorder    *recorder.Recorder
	Audits      middleware.AuditRecorder
	ServiceKeys auth.ServiceKeyStore
	JWTSecret   []byte

	// Held for shutdown
	Orchestrator *orchestrator.Orchestrator
	Sink         logging.Sink
	DB           *storage.DB
	Redis        *redis.Client
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		Database:          cfg.Database.Database,
		User:              cfg.Database.User,
		Password:          cfg.Database.Password,
		SSLMode:           cfg.Database.SSLMode,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		DocumentCacheSize: cfg.Cache.DocumentCacheSize,
		DocumentCacheTTL:  cfg.Cache.DocumentCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	documentRepo := storage.NewDocumentRepository(db)
	usageRepo := storage.NewUsageRepository(db)
	auditRepo := storage.NewAuditRepository(db)

	// Usage and audit records flow through queues; Redis queues survive
	// restarts, memory queues are the local default
	queueCfg := &queue.Config{
		BatchSize:    cfg.Recorder.BatchSize,
		BatchTimeout: cfg.Recorder.BatchTimeout,
		MaxRetries:   cfg.Recorder.MaxRetries,
		RetryBackoff: cfg.Recorder.RetryBackoff,
		QueueName:    "records",
	}
	var usageQueue, auditQueue queue.Queue
	var dlq queue.DeadLetterQueue
	if cfg.Recorder.UseRedisQueue {
		usageQueue = queue.NewRedisQueue(redisClient, "usage")
		auditQueue = queue.NewRedisQueue(redisClient, "audit")
		dlq = queue.NewRedisDeadLetterQueue(redisClient, "records")
	} else {
		usageQueue = queue.NewMemoryQueue(queueCfg)
		auditQueue = queue.NewMemoryQueue(queueCfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	rec := recorder.New(usageQueue, auditQueue, dlq, usageRepo, auditRepo, queueCfg)
	rec.Start(context.Background())

	limiter := ratelimit.NewRateLimiter(redisClient, map[models.OperationKind]ratelimit.Limit{
		models.OpSummarize:         {Requests: cfg.RateLimit.SummarizeRequests, Window: cfg.RateLimit.Window},
		models.OpGenerateQuestions: {Requests: cfg.RateLimit.QuestionsRequests, Window: cfg.RateLimit.Window},
		models.OpAnswerQuestion:    {Requests: cfg.RateLimit.AnswersRequests, Window: cfg.RateLimit.Window},
	})

	quotaSvc := quota.NewRedisQuotaService(redisClient, cfg.Quota.MonthlyTokenAllowance)

	var primary, secondary providers.Provider
	if cfg.Providers.GeminiAPIKey != "" {
		gemini, err := providers.NewGeminiProvider(providers.GeminiConfig{
			APIKey:  cfg.Providers.GeminiAPIKey,
			Model:   cfg.Providers.GeminiModel,
			Timeout: cfg.Providers.CallTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Gemini provider: %w", err)
		}
		primary = gemini
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		openai, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:  cfg.Providers.OpenAIAPIKey,
			Model:   cfg.Providers.OpenAIModel,
			Timeout: cfg.Providers.CallTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize OpenAI provider: %w", err)
		}
		if primary == nil {
			primary = openai
		} else {
			secondary = openai
		}
	}
	failover := providers.NewFailover(primary, secondary, providers.FailoverConfig{
		MaxAttempts: cfg.Providers.MaxAttempts,
		BaseDelay:   cfg.Providers.BaseDelay,
		MaxDelay:    cfg.Providers.MaxDelay,
		CallTimeout: cfg.Providers.CallTimeout,
	})

	var sink logging.Sink = logging.NewNoopSink()
	if cfg.OpsLog.Enabled && cfg.OpsLog.S3Bucket != "" {
		writer, err := logging.NewS3Writer(context.Background(),
			cfg.OpsLog.S3Bucket, cfg.OpsLog.S3Region, cfg.OpsLog.S3Prefix, cfg.OpsLog.PodName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize S3 writer: %w", err)
		}
		sink = logging.NewBufferedSink(writer, logging.BufferedSinkConfig{
			BufferSize:    cfg.OpsLog.BufferSize,
			FlushSize:     cfg.OpsLog.FlushSize,
			FlushInterval: cfg.OpsLog.FlushInterval,
		})
	}

	orch := orchestrator.New(
		orchestrator.Config{SyncWait: cfg.SyncWait},
		dispatch.Config{
			QueueSize:    cfg.Dispatch.QueueSize,
			Workers:      cfg.Dispatch.Workers,
			CompletedTTL: cfg.Dispatch.CompletedTTL,
		},
		documentRepo,
		cache.NewRedisResultStore(redisClient, cfg.Cache.ResultTTL),
		limiter,
		quotaSvc,
		failover,
		rec,
		sink,
	)

	var serviceKeys auth.ServiceKeyStore
	if len(cfg.ServiceAccounts) > 0 {
		accounts := make([]*auth.ServiceAccount, 0, len(cfg.ServiceAccounts))
		for _, sa := range cfg.ServiceAccounts {
			hash, err := auth.HashServiceKey(sa.Key)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to hash service key for %s: %w", sa.ID, err)
			}
			accounts = append(accounts, &auth.ServiceAccount{ID: sa.ID, Name: sa.ID, KeyHash: hash})
		}
		serviceKeys = auth.NewInMemoryServiceKeyStore(accounts)
	}

	deps := &Dependencies{
		Generator:    orch,
		ServiceKeys:  serviceKeys,
		Usage:        usageRepo,
		Recorder:     rec,
		Audits:       rec,
		JWTSecret:    cfg.JWTSecret,
		Orchestrator: orch,
		Sink:         sink,
		DB:           db,
		Redis:        redisClient,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	return mux, deps, nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	actorOnly := middleware.ActorMiddleware(deps.JWTSecret, deps.Audits, auth.RoleStudent)
	instructorOnly := middleware.ActorMiddleware(deps.JWTSecret, deps.Audits, auth.RoleInstructor)

	mux.Handle("/api/ai/summaries", actorOnly(http.HandlerFunc(deps.handleSummarize)))
	mux.Handle("/api/ai/questions", actorOnly(http.HandlerFunc(deps.handleQuestions)))
	mux.Handle("/api/ai/answers", actorOnly(http.HandlerFunc(deps.handleAnswer)))
	mux.Handle("/api/ai/requests/", actorOnly(http.HandlerFunc(deps.handlePoll)))
	mux.Handle("/api/ai/usage", instructorOnly(http.HandlerFunc(deps.handleUsage)))

	if deps.ServiceKeys != nil {
		mux.HandleFunc("/api/auth/token", deps.handleServiceToken)
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.Health(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
