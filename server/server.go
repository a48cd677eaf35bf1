package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/acquire"
	"WaveFM/core/channel"
	"WaveFM/core/concert"
	"WaveFM/core/enrich"
	"WaveFM/core/ingest"
	"WaveFM/core/library"
	"WaveFM/core/station"
	"WaveFM/db"
	"WaveFM/logger"
	"WaveFM/repository"
	"WaveFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端（艺术家背景图存储）
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect gorm database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database", logger.ErrorField(err))
	}
	if err := repository.MigrateRatings(db.GormDB); err != nil {
		logger.Fatal("failed to migrate ratings schema", logger.ErrorField(err))
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	channelRepo := repository.NewMySQLChannelRepository(db.DB)
	ratingRepo := repository.NewGormRatingRepository(db.GormDB)

	enricher := enrich.NewArtworkService(cfg.ArtworkAPIKey)

	lib := library.New(trackRepo, ratingRepo, enricher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := lib.Load(ctx); err != nil {
		logger.Fatal("failed to load track library", logger.ErrorField(err))
	}
	logger.Info("track library loaded", logger.Int("tracks", lib.Count()))

	hub := station.NewHub()
	go hub.Run()
	defer hub.Stop()

	acquirer := acquire.NewProviderClient(cfg.ProviderAPIURL)
	concerts := concert.NewClient(cfg.ConcertAPIKey, cfg.ConcertLocation)
	manager := channel.NewManager(lib, channelRepo, hub, acquirer, concerts)

	// 本地导入目录监听，配置了才启动
	if cfg.ImportDir != "" {
		watcher := ingest.NewWatcher(cfg.ImportDir, lib)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("failed to start import watcher",
				logger.ErrorField(err),
				logger.String("dir", cfg.ImportDir))
		}
	}

	channelHandler := NewChannelHandler(manager, hub, cache.NewChannelCache())

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Listener-UUID")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 频道相关的API端点
	router.HandleFunc("/api/channels/{id}", channelHandler.DetailsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/channels/{id}/tracks", channelHandler.TracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/channels/{id}/songs", channelHandler.AddSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/channels/{id}/ratings", channelHandler.RateTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/channels/{id}/next", channelHandler.NextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/channels/{id}/preload", channelHandler.PreloadHandler).Methods(http.MethodPost)

	// 监听者 WebSocket 入口
	router.HandleFunc("/ws/channels/{id}", channelHandler.WebSocketHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("shutting down server...",
		logger.Int("activeChannels", manager.Active()))

	// 创建一个5秒超时的上下文
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// 优雅关闭服务器
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}
