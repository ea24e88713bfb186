// Package qabotsvc provides the qabot server implementation.
package qabotsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/qabot/internal/qabot/biz"
	"github.com/kart-io/qabot/internal/qabot/handler"
	"github.com/kart-io/qabot/internal/qabot/manifest"
	"github.com/kart-io/qabot/internal/qabot/router"
	"github.com/kart-io/qabot/internal/qabot/sheets"
	"github.com/kart-io/qabot/internal/qabot/store"
	"github.com/kart-io/qabot/pkg/llm"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/qabot/pkg/llm/ollama"
	_ "github.com/kart-io/qabot/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "qabot"

// ProviderConfig names a registered LLM provider and its factory config.
type ProviderConfig struct {
	Provider string
	Config   map[string]any
}

// RedisConfig configures the query-cache Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config contains everything needed to assemble the server.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	WebhookSecret   string

	// SyncInterval is the periodic fallback sync cadence; zero disables it.
	SyncInterval time.Duration
	// SyncOnStart runs one sync right after the server comes up.
	SyncOnStart bool

	ManifestPath string

	Sheets    *sheets.Options
	Milvus    *store.MilvusOptions
	Embedding *ProviderConfig
	Chat      *ProviderConfig
	Indexer   *biz.IndexerConfig
	Retriever *biz.RetrieverConfig
	Cache     *biz.QueryCacheConfig
	Redis     *RedisConfig
}

// Server is the assembled qabot service.
type Server struct {
	cfg     *Config
	service biz.Service
	httpSrv *http.Server

	storeClose func()
	redisClose func()
}

// NewServer wires the sheets source, vector store, LLM providers, cache and
// the pipeline into a runnable server.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	logger.Info("Starting qabot service...")

	sheetsClient, err := sheets.New(ctx, cfg.Sheets)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}
	logger.Infow("Sheets source initialized",
		"spreadsheet_id", cfg.Sheets.SpreadsheetID,
		"sheet", cfg.Sheets.SheetName,
	)

	vectorStore, err := store.NewMilvusStore(ctx, cfg.Milvus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Infow("Vector store initialized",
		"address", cfg.Milvus.Address,
		"collection", cfg.Milvus.Collection,
	)

	embedProvider, err := llm.NewEmbeddingProvider(cfg.Embedding.Provider, cfg.Embedding.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized", "provider", cfg.Embedding.Provider)

	chatProvider, err := llm.NewChatProvider(cfg.Chat.Provider, cfg.Chat.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized", "provider", cfg.Chat.Provider)

	// Left as a nil interface when disabled; the service treats that as
	// no cache.
	var queryCache biz.QueryCacher
	var redisClose func()
	if cfg.Cache != nil && cfg.Cache.Enabled && cfg.Redis != nil {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnw("failed to connect to redis, query cache disabled", "error", err.Error())
			_ = redisClient.Close()
		} else {
			queryCache = biz.NewQueryCache(redisClient, cfg.Cache)
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Query cache initialized", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		}
	} else {
		logger.Info("Query cache disabled")
	}

	manifests := manifest.NewFileStore(cfg.ManifestPath)
	indexer := biz.NewIndexer(sheetsClient, vectorStore, embedProvider, manifests, cfg.Indexer)
	retriever := biz.NewRetriever(vectorStore, embedProvider, cfg.Retriever)
	composer := biz.NewComposer(chatProvider)
	service := biz.NewService(indexer, retriever, composer, queryCache, vectorStore)
	logger.Info("Service layer initialized")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.NewQABotHandler(service, cfg.WebhookSecret))

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	logger.Info("qabot service is ready")
	return &Server{
		cfg:        cfg,
		service:    service,
		httpSrv:    httpSrv,
		storeClose: func() { _ = vectorStore.Close(context.Background()) },
		redisClose: redisClose,
	}, nil
}

// Run starts the HTTP server and the periodic fallback sync, then blocks
// until a termination signal arrives and shutdown completes.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.storeClose != nil {
			s.storeClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.cfg.HTTPAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.runSyncLoop(runCtx)

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// runSyncLoop runs the startup sync and the periodic fallback. Both go
// through Service.Sync, so they share the same mutual exclusion as webhook
// triggers; an in-flight sync just means this round is skipped.
func (s *Server) runSyncLoop(ctx context.Context) {
	syncOnce := func() {
		syncCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		if _, err := s.service.Sync(syncCtx, false); err != nil {
			if errors.Is(err, biz.ErrSyncInProgress) {
				logger.Info("periodic sync skipped, another sync in flight")
				return
			}
			logger.Errorw("periodic sync failed", "error", err.Error())
		}
	}

	if s.cfg.SyncOnStart {
		syncOnce()
	}

	if s.cfg.SyncInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce()
		}
	}
}
