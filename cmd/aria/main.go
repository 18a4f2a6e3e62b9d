package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/api"
	"github.com/arcwell-foundry/Aria-sub002/internal/autonomy"
	"github.com/arcwell-foundry/Aria-sub002/internal/config"
	"github.com/arcwell-foundry/Aria-sub002/internal/discovery"
	"github.com/arcwell-foundry/Aria-sub002/internal/embedding"
	"github.com/arcwell-foundry/Aria-sub002/internal/graph"
	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
	"github.com/arcwell-foundry/Aria-sub002/internal/marketplace"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
	"github.com/arcwell-foundry/Aria-sub002/internal/signals"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
	pgstore "github.com/arcwell-foundry/Aria-sub002/internal/store"
	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
	"github.com/arcwell-foundry/Aria-sub002/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Aria skill core...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/aria.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize LLM router
	router := llm.NewRouter(logger)
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			router.Register(llm.NewOpenAIProvider(pc, logger))
		case "anthropic":
			router.Register(llm.NewAnthropicProvider(pc, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize PostgreSQL store
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			dir := cfg.Server.MigrationsDir
			if dir == "" {
				dir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), dir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Initialize embedder and Qdrant
	embedder := embedding.New(cfg.Embedding)
	var qdrant *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		qc, qErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without vector search", zap.Error(qErr))
		} else {
			qdrant = qc
		}
	}

	// Initialize marketplace index
	var market *marketplace.Index
	if store != nil {
		market = marketplace.NewIndex(store.Pool(), qdrant, embedder, cfg.Marketplace.FeedURL, logger)
		if qdrant != nil {
			if err := market.EnsureVectorCollection(context.Background()); err != nil {
				logger.Warn("marketplace vector collection unavailable", zap.Error(err))
			}
		}
	}

	// Initialize skill registry
	var customSource skill.CustomSource
	var externalSource skill.ExternalSource
	if store != nil {
		customSource = store
	}
	if market != nil {
		externalSource = market
	}
	registry := skill.NewRegistry(customSource, externalSource, logger)
	registry.Initialize(context.Background())

	// Initialize notification service with optional chat mirrors
	var sink notify.Sink
	if store != nil {
		sink = store
	}
	var mirrors []notify.Mirror
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		mirrors = append(mirrors, notify.NewSlackMirror(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		dm, dErr := notify.NewDiscordMirror(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.Channel, logger)
		if dErr != nil {
			logger.Warn("Discord mirror unavailable", zap.Error(dErr))
		} else {
			mirrors = append(mirrors, dm)
		}
	}
	notifier := notify.NewService(sink, logger, mirrors...)

	// Initialize entity graph
	var entities trigger.EntitySource
	var entityStore api.EntityStore
	if cfg.Database.Neo4j.URI != "" {
		eg, gErr := graph.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without entity graph", zap.Error(gErr))
		} else {
			defer eg.Close(context.Background())
			entities = eg
			entityStore = eg
		}
	}

	// Initialize signal vector index
	var signalSearch trigger.SignalSearcher
	if qdrant != nil {
		si, sErr := signals.NewIndex(context.Background(), qdrant, embedder, logger)
		if sErr != nil {
			logger.Warn("signal index unavailable, falling back to recency", zap.Error(sErr))
		} else {
			signalSearch = si
		}
	}

	// Initialize autonomy service and trigger pipeline
	var pipeline *trigger.Pipeline
	if store != nil {
		approvals := autonomy.New(store.Pool(), logger)
		pipeline = trigger.NewPipeline(router, store, entities, signalSearch, approvals, store, notifier, logger)
	}

	// Initialize discovery agent with Redis dedup window
	var disc *discovery.Agent
	if store != nil && market != nil {
		var window discovery.Window
		if cfg.Database.Redis.URL != "" {
			w, wErr := discovery.NewRedisWindow(cfg.Database.Redis.URL, 7*24*time.Hour, logger)
			if wErr != nil {
				logger.Warn("Redis unavailable, recommendations will not be deduplicated", zap.Error(wErr))
			} else {
				window = w
			}
		}
		disc = discovery.NewAgent(store, market, router, window, notifier, logger)
	}

	// Scheduled discovery runs for configured users
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if disc != nil && cfg.Discovery.Enabled {
		go runDiscoveryLoop(ctx, disc, registry, time.Duration(cfg.Discovery.IntervalMinutes)*time.Minute, logger)
	}

	// Build HTTP handler
	var plans api.PlanReader
	var sigStore api.SignalStore
	if store != nil {
		plans = store
		sigStore = store
	}
	var sigIndexer api.SignalIndexer
	if si, ok := signalSearch.(api.SignalIndexer); ok {
		sigIndexer = si
	}
	handler := api.NewHandler(registry, pipeline, disc, plans, sigStore, sigIndexer, entityStore, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Aria listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Aria...")
	cancel()
	srv.Shutdown(context.Background())
	if qdrant != nil {
		qdrant.Close()
	}
	if store != nil {
		store.Close()
	}
}

// runDiscoveryLoop refreshes the external catalog and runs gap discovery on a
// fixed interval. Users come from DISCOVERY_USERS, comma-separated.
func runDiscoveryLoop(ctx context.Context, disc *discovery.Agent, registry *skill.Registry,
	interval time.Duration, logger *zap.Logger) {
	users := splitUsers(os.Getenv("DISCOVERY_USERS"))
	if len(users) == 0 {
		logger.Info("no discovery users configured, scheduled runs disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.RefreshExternal(ctx)
			for _, u := range users {
				recs := disc.Run(ctx, u)
				if len(recs) > 0 {
					logger.Info("discovery run delivered recommendations",
						zap.String("user_id", u), zap.Int("count", len(recs)))
				}
			}
		}
	}
}

func splitUsers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
