package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/config"
	"github.com/ziadkadry99/econsult/internal/db"
	"github.com/ziadkadry99/econsult/internal/eureka"
	"github.com/ziadkadry99/econsult/internal/history"
	"github.com/ziadkadry99/econsult/internal/llm"
	"github.com/ziadkadry99/econsult/internal/metrics"
	"github.com/ziadkadry99/econsult/internal/prompts"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/server"
	"github.com/ziadkadry99/econsult/internal/settings"
	"github.com/ziadkadry99/econsult/internal/tracing"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

const shutdownGrace = 15 * time.Second

// pipeline holds everything a search needs. close releases it in reverse
// order of construction.
type pipeline struct {
	db       *db.DB
	settings *settings.Store
	history  *history.Store
	store    vectordb.VectorStore
	search   *search.Service
	watcher  *prompts.Watcher
	closers  []func(context.Context) error
}

func (p *pipeline) close(ctx context.Context) error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildPipeline opens the database, prompt templates, LLM provider and
// vector store, and assembles the search service on top of them.
func buildPipeline(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	p.db = database
	p.closers = append(p.closers, func(context.Context) error { return database.Close() })
	p.settings = settings.NewStore(database)
	if cfg.Search.RecordHistory {
		p.history = history.NewStore(database)
	}

	promptMgr, err := prompts.NewManager(cfg.Prompts.Dir, logger.Named("prompts"))
	if err != nil {
		p.close(ctx)
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	if cfg.Prompts.Watch && cfg.Prompts.Dir != "" {
		w, err := prompts.NewWatcher(promptMgr, logger.Named("prompts"))
		if err != nil {
			p.close(ctx)
			return nil, fmt.Errorf("watching prompts: %w", err)
		}
		p.watcher = w
		p.closers = append(p.closers, func(context.Context) error { w.Stop(); return nil })
	}

	provider, err := llm.NewProvider(cfg.LLM, logger.Named("llm"))
	if err != nil {
		p.close(ctx)
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if bp, ok := provider.(*llm.BreakerProvider); ok {
		if err := collector.Register(bp.StateGauge("econsult")); err != nil {
			logger.Warn("registering circuit breaker metric", zap.Error(err))
		}
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		p.close(ctx)
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := createStoreFromConfig(ctx, cfg, embedder, logger.Named("vectordb"))
	if err != nil {
		p.close(ctx)
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	p.store = store
	p.closers = append(p.closers, store.Close)

	deps := search.Deps{
		Store:    store,
		LLM:      provider,
		Prompts:  promptMgr,
		Settings: p.settings,
		Metrics:  collector,
	}
	// Assigned only when set so the interface stays nil.
	if p.history != nil {
		deps.History = p.history
	}

	model := cfg.LLM.Model
	if model == "" {
		model = cfg.LLM.Deployment
	}
	p.search = search.NewService(deps, search.Options{
		Limit:              cfg.Vector.Limit,
		VectorTimeout:      cfg.Search.VectorTimeout,
		RelevancyTimeout:   cfg.Search.RelevancyTimeout,
		SummaryTimeout:     cfg.Search.SummaryTimeout,
		RelevancyMaxTokens: cfg.Search.RelevancyMaxTokens,
		SummaryMaxTokens:   cfg.Search.SummaryMaxTokens,
		Temperature:        cfg.Search.Temperature,
		Model:              model,
	}, logger.Named("search"))

	return p, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API and web UI",
	Long: `Starts the econsult HTTP server: the search, settings and history API,
the websocket search endpoint, actuator endpoints, Prometheus metrics and
the browser UI. Registers with Eureka when enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if p, _ := cmd.Flags().GetInt("port"); p > 0 {
			cfg.Server.Port = p
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tp, err := tracing.Init(ctx, cfg.Tracing.Enabled, server.ServiceName, Version, cfg.Tracing.Endpoint, logger.Named("tracing"))
		if err != nil {
			return fmt.Errorf("initialising tracing: %w", err)
		}

		collector := metrics.NewCollector("econsult")
		p, err := buildPipeline(ctx, cfg, collector, logger)
		if err != nil {
			tp.Shutdown(context.Background())
			return err
		}

		srv, err := server.New(server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AppName:        cfg.Server.AppName,
			Version:        Version,
			Development:    cfg.Server.Development,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			PublicAPIBase:  cfg.Server.PublicAPIBase,
			StaticDir:      cfg.Server.StaticDir,
		}, server.Deps{
			Settings:          p.settings,
			SettingsMaxLength: cfg.Search.SettingsMaxLength,
			History:           p.history,
			Search:            p.search,
			Metrics:           collector,
		}, logger.Named("server"))
		if err != nil {
			p.close(context.Background())
			tp.Shutdown(context.Background())
			return fmt.Errorf("creating server: %w", err)
		}

		eurekaCfg := cfg.Eureka
		if eurekaCfg.InstancePort == 0 {
			eurekaCfg.InstancePort = cfg.Server.Port
		}
		registrar := eureka.NewRegistrar(
			eureka.NewClient(eurekaCfg, logger.Named("eureka")),
			eurekaCfg.HeartbeatSchedule,
			logger.Named("eureka"),
		)
		if err := registrar.Start(ctx); err != nil {
			logger.Error("eureka registration failed, retrying with each heartbeat", zap.Error(err))
		}

		srv.OnShutdown("eureka", registrar.Stop)
		srv.OnShutdown("tracing", tp.Shutdown)
		srv.OnShutdown("pipeline", p.close)

		if n, err := p.store.Count(ctx); err == nil {
			logger.Info("vector store ready",
				zap.String("backend", p.store.Name()),
				zap.Int("documents", n),
			)
		}
		fmt.Fprintf(os.Stderr, "econsult listening on %s\n", srv.Addr())

		return srv.Run(ctx, shutdownGrace)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)
}
