package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/embedcache"
	"github.com/xxxsen/docchat/internal/handler"
	"github.com/xxxsen/docchat/internal/ingest"
	"github.com/xxxsen/docchat/internal/job"
	"github.com/xxxsen/docchat/internal/memory"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/repo"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/schedule"
	"github.com/xxxsen/docchat/internal/service"
	"github.com/xxxsen/docchat/internal/websearch"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docchat",
		Short: "docchat backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DSN)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("web_search", cfg.WebSearch.Enable),
	)

	chunkRepo := repo.NewChunkRepo(db)
	memoryRepo := repo.NewMemoryRepo(db)
	summaryRepo := repo.NewSummaryRepo(db)
	messageRepo := repo.NewMessageRepo(db)
	cacheRepo := repo.NewEmbeddingCacheRepo(db)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init embed provider: %w", err)
	}

	genEntries := []ai.GeneratorEntry{{Name: cfg.AI.Provider, Generator: ai.NewGenerator(aiProvider, cfg.AI.Model)}}
	embedEntries := []ai.EmbedderEntry{{Name: cfg.AI.EmbedModel, Embedder: ai.NewEmbedder(embedProvider, cfg.AI.EmbedModel)}}
	for _, fb := range cfg.AI.Fallbacks {
		if fb.Model != "" {
			provider, err := ai.NewProvider(fb.Provider, fb.Data)
			if err != nil {
				return fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
			}
			genEntries = append(genEntries, ai.GeneratorEntry{Name: fb.Provider, Generator: ai.NewGenerator(provider, fb.Model)})
		}
		if fb.EmbedModel != "" {
			provider, err := ai.NewEmbedProvider(fb.Provider, fb.Data)
			if err != nil {
				return fmt.Errorf("init fallback embed provider %s: %w", fb.Provider, err)
			}
			embedEntries = append(embedEntries, ai.EmbedderEntry{Name: fb.EmbedModel, Embedder: ai.NewEmbedder(provider, fb.EmbedModel)})
		}
	}
	completer := genEntries[0].Generator
	if len(genEntries) > 1 {
		completer = ai.NewGroupGenerator(genEntries)
	}
	embedder := embedEntries[0].Embedder
	if len(embedEntries) > 1 {
		embedder = ai.NewGroupEmbedder(embedEntries)
	}
	if cfg.EmbedCache.UseDB {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.TTLSeconds)*time.Second)

	gateway := ai.NewManager(
		completer,
		ai.NewGenerator(aiProvider, cfg.AI.SummaryModel),
		embedder,
		ai.ManagerConfig{Timeout: cfg.AI.Timeout, MaxInputChars: cfg.AI.MaxInputChars},
	)

	var searcher websearch.Searcher
	if cfg.WebSearch.Enable {
		searcher = websearch.NewSerpSearcher(websearch.SerpConfig{
			APIKey:     cfg.WebSearch.APIKey,
			BaseURL:    cfg.WebSearch.BaseURL,
			Engine:     cfg.WebSearch.Engine,
			MaxResults: cfg.WebSearch.MaxResults,
			TimeoutSec: cfg.WebSearch.TimeoutSec,
		})
	}

	retriever := retrieval.NewRetriever(chunkRepo, retrieval.Config{
		Alpha: cfg.Retrieval.Alpha,
		TopK:  cfg.Retrieval.TopK,
	})
	memoryStore := memory.NewStore(memoryRepo, summaryRepo, cfg.Memory.TopK)
	curator := memory.NewCurator(memoryRepo, summaryRepo, messageRepo, gateway, gateway, memory.CuratorConfig{
		SummaryWindow: cfg.Memory.SummaryWindow,
	})

	turnService := service.NewTurnService(retriever, searcher, memoryStore, curator, messageRepo, gateway, service.TurnConfig{
		ConfidenceThreshold: cfg.Retrieval.ConfidenceThreshold,
		HistoryWindow:       cfg.Retrieval.HistoryWindow,
	})
	searchService := service.NewSearchService(retriever, gateway, cfg.Retrieval.ConfidenceThreshold)
	ingestService := ingest.NewService(chunkRepo, gateway, ingest.NewChunker(ingest.ChunkerConfig{}))

	deps := handler.RouterDeps{
		Chats:  handler.NewChatHandler(turnService, summaryRepo, memoryRepo),
		Search: handler.NewSearchHandler(searchService),
		Ingest: handler.NewIngestHandler(ingestService),
	}

	middlewares := []gin.HandlerFunc{
		middleware.CORS(cfg.CORSAllowlist),
		gzip.Gzip(gzip.DefaultCompression),
	}
	if cfg.RateLimitMs > 0 {
		middlewares = append(middlewares, middleware.RateLimit(time.Duration(cfg.RateLimitMs)*time.Millisecond))
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(middlewares...),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewMemoryPruneJob(memoryRepo, cfg.Memory.RetentionDays, cfg.Memory.ImportanceFloor), cfg.Jobs.MemoryPruneSpec); err != nil {
		return err
	}
	if cfg.EmbedCache.UseDB {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.Jobs.CacheCleanupSpec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
