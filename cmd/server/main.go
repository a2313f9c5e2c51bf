package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage-service/internal/classifier"
	"triage-service/internal/config"
	"triage-service/internal/events"
	"triage-service/internal/handler"
	"triage-service/internal/inference"
	"triage-service/internal/metrics"
	"triage-service/internal/models"
	"triage-service/internal/repository"
	"triage-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", config.DefaultPath), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting triage service...", zap.String("profile", string(cfg.Profile)))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize repository
	db, err := repository.Open(ctx, cfg.Database.Type, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	repo := repository.NewPredictionRepository(db, cfg.Database.Type, logger)
	defer repo.Close()

	// Initialize upstream models
	engineOpts := classifier.Options{Profile: cfg.Profile, Observer: m, Logger: logger}
	if cfg.Profile == classifier.ProfileFull && cfg.Inference.URL != "" {
		attachModels(ctx, &engineOpts, cfg.Inference, logger)
	}
	engine, err := classifier.New(engineOpts)
	if err != nil {
		return err
	}
	caps := engine.Capabilities()
	m.SetModelLoaded(models.InputText, caps.Text)
	m.SetModelLoaded(models.InputImage, caps.Image)
	m.SetModelLoaded(models.InputAudio, caps.Audio)

	// Initialize event sink
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, logger)
	}
	defer publisher.Close()

	// Initialize service
	predictor := service.NewPredictor(engine, repo, publisher, m, logger)

	// Setup Gin router
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestID(), handler.AccessLog(logger, m), handler.CORS())
	handler.NewHandler(predictor, handler.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Gatherer:       prometheus.DefaultGatherer,
	}, logger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting",
			zap.String("address", srv.Addr),
			zap.Bool("text_model", caps.Text),
			zap.Bool("image_model", caps.Image),
			zap.Bool("audio_model", caps.Audio))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// attachModels routes each modality the model server serves to it. When the
// server is down at boot all three are routed and the breaker takes over.
func attachModels(ctx context.Context, opts *classifier.Options, cfg config.InferenceConfig, logger *zap.Logger) {
	client := inference.NewClient(inference.Config{
		BaseURL:        cfg.URL,
		Timeout:        cfg.Timeout,
		BreakerTimeout: cfg.BreakerTimeout,
		MaxFailures:    cfg.MaxFailures,
		Logger:         logger,
	})

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	modalities, err := client.Modalities(healthCtx)
	if err != nil {
		logger.Warn("Model server unavailable at startup, relying on circuit breaker",
			zap.String("url", cfg.URL), zap.Error(err))
	}

	if modalities.Text {
		opts.Text = client
	}
	if modalities.Image {
		opts.Image = client
	}
	if modalities.Audio {
		opts.Audio = client
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
