package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"adforge/internal/adapter/repo"
	"adforge/internal/events"
	"adforge/internal/http/handlers"
	"adforge/internal/http/httpapi"
	"adforge/internal/infra"
	"adforge/internal/infra/geoip"
	"adforge/internal/infra/google"
	"adforge/internal/ingest"
	"adforge/internal/pipeline"
	imagegen "adforge/internal/providers/image"
	"adforge/internal/providers/prompt"
	videogen "adforge/internal/providers/video"
	"adforge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	users := repo.NewUserRepository(dbpool)
	ads := repo.NewAdRepository(dbpool)

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	synth, err := prompt.NewOpenAISynthesizer(prompt.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("openai synthesizer init failed")
	}

	images, err := imagegen.NewGeminiGenerator(imagegen.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini generator init failed")
	}

	videos, err := videogen.NewReplicateGenerator(videogen.ReplicateOptions{
		APIToken: cfg.ReplicateAPIToken,
		Model:    cfg.ReplicateModel,
		BaseURL:  cfg.ReplicateBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("replicate generator init failed")
	}

	// Durable storage: ImageKit in production, local filesystem when no key
	// is configured.
	var store storage.Uploader
	staticDir := ""
	if cfg.ImageKitPrivateKey != "" {
		store, err = storage.NewImageKitClient(storage.ImageKitOptions{
			PrivateKey: cfg.ImageKitPrivateKey,
			BaseURL:    cfg.ImageKitBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("imagekit client init failed")
		}
	} else {
		fileStore, fsErr := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if fsErr != nil {
			logger.Fatal().Err(fsErr).Msg("file store init failed")
		}
		store = fileStore
		staticDir = cfg.StoragePath
		logger.Warn().Str("path", cfg.StoragePath).Msg("imagekit key missing, using local file store")
	}

	hub := events.NewHub()
	fetcher := ingest.NewFetcher(&http.Client{Timeout: 60 * time.Second})

	svc := pipeline.New(pipeline.Deps{
		Ads:     ads,
		Users:   users,
		Store:   store,
		Prompts: synth,
		Images:  images,
		Videos:  videos,
		Fetcher: fetcher,
		Events:  hub,
		Logger:  logger,
	})

	app := &handlers.App{
		Service:   svc,
		Ads:       ads,
		Users:     users,
		Hub:       hub,
		Verifier:  google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID),
		JWTSecret: cfg.JWTSecret,
		Logger:    logger,
	}

	router := httpapi.NewRouter(app, logger, countries, staticDir)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
