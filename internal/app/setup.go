package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	genkitapi "github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/time/rate"

	"github.com/faithh/faithh/db"
	"github.com/faithh/faithh/internal/api"
	"github.com/faithh/faithh/internal/chat"
	"github.com/faithh/faithh/internal/config"
	"github.com/faithh/faithh/internal/gateway"
	"github.com/faithh/faithh/internal/intent"
	"github.com/faithh/faithh/internal/knowledge"
	"github.com/faithh/faithh/internal/memory"
	"github.com/faithh/faithh/internal/rag"
	"github.com/faithh/faithh/internal/session"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// gatewayRate caps generation requests across all providers.
const (
	gatewayRatePerSec = 2
	gatewayBurst      = 5
)

// Setup initializes the application. A failed Postgres connection
// degrades the app instead of failing it; everything else is fatal.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	mem, err := memory.New(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	a.Memory = mem

	a.Sessions = session.New(session.Config{
		HistoryLimit:   cfg.SessionHistoryLimit,
		IdleTimeout:    time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		SweepWatermark: cfg.SessionSweepWatermark,
	}, logger)

	pool, index, err := provideIndex(ctx, cfg, embedder, logger)
	if err != nil {
		// Degraded mode: retrieval and archiving disabled, chat still works.
		logger.Warn("vector index unavailable, starting degraded", "error", err)
	} else {
		a.Pool = pool
		a.Index = index
		a.Indexer = chat.NewIndexer(index, cfg.IndexQueueSize, logger)
	}

	a.Gateway = provideGateway(g, cfg, logger)

	// A nil *knowledge.Store must not become a non-nil interface.
	var ragIndex rag.Index
	if a.Index != nil {
		ragIndex = a.Index
	}
	assembler := rag.New(rag.Config{
		TopK:                 cfg.RetrievalTopK,
		DistanceThreshold:    cfg.RetrievalDistanceThreshold,
		DomainCategory:       cfg.DomainCategory,
		ConversationCategory: knowledge.CategoryLiveConversation,
		BroadCategories: []string{
			cfg.DomainCategory,
			knowledge.CategoryLiveConversation,
		},
	}, mem, a.Sessions, ragIndex, logger)

	orch, err := chat.New(chat.Config{
		Gateway:    a.Gateway,
		Assembler:  assembler,
		Classifier: intent.NewClassifier(cfg.DomainKeywords),
		Sessions:   a.Sessions,
		Logger:     logger,
		Topics:     mem,
		Indexer:    a.Indexer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	var pinger api.IndexPinger
	if a.Index != nil {
		pinger = a.Index
	}
	server, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Chat:      orch,
		Sessions:  a.Sessions,
		Providers: a.Gateway.Providers(),
		Index:     pinger,
		Version:   Version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	logger.Info("application ready",
		"provider", cfg.Provider,
		"providers", a.Gateway.Providers(),
		"degraded", a.Degraded())
	return a, nil
}

// provideGenkit initializes Genkit with the Ollama plugin always
// registered and the Google AI plugin only when a key is present.
// Ollama requires explicit model registration.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
	plugins := []genkitapi.Plugin{ollamaPlugin}

	geminiAvailable := os.Getenv("GEMINI_API_KEY") != ""
	if geminiAvailable {
		plugins = append(plugins, &googlegenai.GoogleAI{})
	} else if cfg.Provider == config.ProviderGemini {
		logger.Warn("GEMINI_API_KEY not set, cloud provider disabled")
	}

	g := genkit.Init(ctx, genkit.WithPlugins(plugins...))
	if g == nil {
		return nil, nil, errors.New("initializing genkit")
	}

	ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
		Name: cfg.LocalModel,
		Type: "chat",
	}, nil)
	ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.LocalModel, nil)

	var embedder ai.Embedder
	if geminiAvailable {
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	} else {
		embedder = ollama.Embedder(g, cfg.OllamaHost)
	}
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	logger.Info("genkit initialized",
		"ollama_host", cfg.OllamaHost,
		"gemini_available", geminiAvailable)
	return g, embedder, nil
}

// provideIndex migrates the schema, opens the pool with pgvector type
// registration, and builds the knowledge store on top.
func provideIndex(ctx context.Context, cfg *config.Config, embedder ai.Embedder, logger *slog.Logger) (*pgxpool.Pool, *knowledge.Store, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	store := knowledge.New(
		knowledge.NewQueries(pool),
		embedder,
		time.Duration(cfg.RetrievalTimeoutSeconds)*time.Second,
		logger,
	)
	return pool, store, nil
}

// provideGateway builds the provider chain. The configured provider
// leads; the other falls back. Without a Gemini key the chain is
// Ollama alone.
func provideGateway(g *genkit.Genkit, cfg *config.Config, logger *slog.Logger) *gateway.Gateway {
	genTimeout := time.Duration(cfg.GenerationTimeoutSeconds) * time.Second

	cloud := gateway.NewGenkitProvider(g, config.ProviderGemini,
		"googleai/"+cfg.CloudModel, genTimeout, logger)
	local := gateway.NewGenkitProvider(g, config.ProviderOllama,
		"ollama/"+cfg.LocalModel, genTimeout, logger)

	var providers []gateway.Provider
	switch {
	case os.Getenv("GEMINI_API_KEY") == "":
		providers = []gateway.Provider{local}
	case cfg.Provider == config.ProviderOllama:
		providers = []gateway.Provider{local, cloud}
	default:
		providers = []gateway.Provider{cloud, local}
	}

	limiter := rate.NewLimiter(rate.Limit(gatewayRatePerSec), gatewayBurst)
	return gateway.New(providers, limiter, logger)
}
