package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/memorymap-backend-go/internal/api"
	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/config"
	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/globe"
	"github.com/jengzang/memorymap-backend-go/internal/handler"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/mapview"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
	"github.com/jengzang/memorymap-backend-go/internal/middleware"
	"github.com/jengzang/memorymap-backend-go/internal/notesource"
	"github.com/jengzang/memorymap-backend-go/internal/repository"
	"github.com/jengzang/memorymap-backend-go/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据源
	source, store, watcher, err := openSource(cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	m := metrics.New()
	index := cluster.NewIndex(cfg.Cluster, nil, log)
	overview := globe.New(cfg.Globe, cfg.Viewport.GlobeModeZoomFloor, cluster.NewIndex(cfg.Globe.ClusterOptions(), nil, log.Named("globe")))
	views := mapview.NewRegistry(cfg.Views, index, cfg.Disclosure, cfg.Viewport, m, log)
	svc := service.NewMapService(source, index, overview, views, m, log)
	if store != nil {
		svc.SetNoteStore(store)
	}

	if err := svc.Refresh(ctx); err != nil {
		log.Error("initial refresh failed, serving an empty map", "error", err)
	}

	tokens := middleware.NewViewTokens(cfg.Auth.ViewTokenSecret, cfg.Auth.ViewTokenTTL)
	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	// 初始化路由
	router := api.SetupRouter(cfg, api.Dependencies{
		Map:     handler.NewMapHandler(svc, tokens),
		Tokens:  tokens,
		Limiter: limiter,
		Metrics: m,
		Log:     log,
	})

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router,
		// Event streams end with the server context
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	// 启动服务器
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return views.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx, cfg.Source.RefreshInterval, watcher) })
	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}

	return g.Wait()
}

// openSource builds the configured note source, wrapped with the local
// cache when one is configured. The note store is nil for file sources.
func openSource(cfg *config.Config, log *logger.Logger) (notesource.Source, service.NoteStore, *notesource.Watcher, error) {
	var (
		source  notesource.Source
		store   service.NoteStore
		watcher *notesource.Watcher
	)

	switch cfg.Source.Kind {
	case config.SourceSQLite:
		// 初始化数据库
		if err := database.Init(cfg.Database, log); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db, err := database.GetDB()
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewNoteRepository(db)
		source = notesource.NewSQLiteSource(repo)
		store = repo

	case config.SourceFile:
		source = notesource.NewFileSource(cfg.Source.File)
		if cfg.Source.Watch {
			w, err := notesource.NewWatcher(cfg.Source.File, 0, log)
			if err != nil {
				return nil, nil, nil, err
			}
			watcher = w
		}

	default:
		return nil, nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if cfg.Source.CachePath != "" {
		source = notesource.NewCachedSource(source, notesource.NewCache(cfg.Source.CachePath), log)
	}
	return source, store, watcher, nil
}
