package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/harentsoaR/medrec-api/internal/config"
	"github.com/harentsoaR/medrec-api/internal/handlers"
	"github.com/harentsoaR/medrec-api/internal/metrics"
	"github.com/harentsoaR/medrec-api/internal/middleware"
	"github.com/harentsoaR/medrec-api/internal/realtime"
	"github.com/harentsoaR/medrec-api/internal/services"
	"github.com/harentsoaR/medrec-api/internal/store"
	"github.com/harentsoaR/medrec-api/internal/utils"
)

type backends struct {
	users         services.UserStore
	ledger        services.RefreshTokenLedger
	notifications services.NotificationStore
	images        services.ImageStore
	close         func(context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}
	cfg := config.Load()

	logger, err := utils.NewLogger(utils.LogConfig{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("mongo_database", cfg.MongoDatabase),
		zap.Bool("jwt_secret_set", len(cfg.JWTSecret) > 0),
		zap.Bool("refresh_secret_set", len(cfg.RefreshTokenSecret) > 0),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
	)
	if len(cfg.JWTSecret) == 0 || len(cfg.RefreshTokenSecret) == 0 {
		logger.Warn("JWT_SECRET or REFRESH_TOKEN_SECRET is NOT SET; token issuance will fail")
	}

	// --- Storage ---
	b, err := openBackends(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}

	// --- Instrumentation ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var events services.EventPublisher = services.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		events = services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}

	// --- Services ---
	codec := utils.NewTokenCodec(cfg.JWTSecret, cfg.RefreshTokenSecret,
		utils.WithTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		utils.WithHashCost(cfg.BcryptCost),
	)
	sessions := services.NewSessionManager(services.SessionDeps{
		Users:      b.users,
		Ledger:     b.ledger,
		Codec:      codec,
		Events:     events,
		Logger:     logger,
		Metrics:    m,
		BcryptCost: cfg.BcryptCost,
	})
	profiles := services.NewProfileService(services.ProfileDeps{
		Users:    b.users,
		Images:   b.images,
		Sessions: sessions,
		Events:   events,
		Logger:   logger,
	})

	rooms := realtime.NewMemoryRegistry()
	hub := realtime.NewHub(rooms, logger, m)
	notifications := services.NewNotificationService(b.notifications, hub, logger)
	gateway := realtime.NewGateway(realtime.GatewayDeps{
		Codec:          codec,
		Hub:            hub,
		Registry:       rooms,
		Notifications:  notifications,
		Logger:         logger,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// --- Gin Router ---
	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), m.Middleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	h := handlers.NewHandler(sessions, profiles, notifications, logger)
	h.MaxUploadBytes = cfg.MaxUploadBytes
	h.Routes(r, handlers.RouterDeps{
		Codec:       codec,
		Users:       b.users,
		AuthLimiter: middleware.NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		Realtime:    gateway.Handle,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(ctx, cfg.TokenSweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	if err := events.Close(); err != nil {
		logger.Warn("Closing event publisher", zap.Error(err))
	}
	if err := b.close(shutdownCtx); err != nil {
		logger.Warn("Closing storage", zap.Error(err))
	}
}

func openBackends(cfg config.Config, logger *zap.Logger) (*backends, error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI is not set; using in-memory storage, data is lost on restart")
		return &backends{
			users:         store.NewMemoryUserStore(),
			ledger:        store.NewMemoryRefreshTokenLedger(),
			notifications: store.NewMemoryNotificationStore(),
			images:        store.NewMemoryImageStore(handlers.ImagesPath),
			close:         func(context.Context) error { return nil },
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)
	logger.Info("Successfully connected to MongoDB", zap.String("database", cfg.MongoDatabase))

	if err := store.EnsureIndexes(ctx, db); err != nil {
		logger.Warn("Index creation failed", zap.Error(err))
	}
	images, err := store.NewGridFSImages(db, handlers.ImagesPath)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &backends{
		users:         store.NewMongoUserStore(db),
		ledger:        store.NewMongoRefreshTokenLedger(db),
		notifications: store.NewMongoNotificationStore(db),
		images:        images,
		close:         client.Disconnect,
	}, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			// Credentials cannot be combined with a literal "*".
			c.AllowOriginFunc = func(string) bool { return true }
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
