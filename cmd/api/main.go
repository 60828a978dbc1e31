package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"freilog/api/internal/app"
	"freilog/api/internal/basedata"
	"freilog/api/internal/config"
	"freilog/api/internal/search"
	"freilog/api/internal/snapshots"
	"freilog/api/internal/storage"
	"freilog/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	provider, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer provider.Close()

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		log.Fatalf("base dataset source: %v", err)
	}

	var opts []store.Option
	var historian *snapshots.Service
	if strings.TrimSpace(cfg.SnapshotsDir) != "" {
		historian, err = snapshots.New(cfg.SnapshotsDir)
		if err != nil {
			log.Fatalf("snapshots init failed: %v", err)
		}
		opts = append(opts, store.WithHistorian(historian))
	}

	dataStore := store.New(provider, fetcher, opts...)
	defer dataStore.Dispose()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient)

	var hist app.HistoryProvider
	if historian != nil {
		hist = historian
	}
	service := app.New(cfg, dataStore, searchService, hist)
	if err := service.Init(ctx); err != nil {
		log.Fatalf("base dataset load failed: %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Freilog API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Provider, error) {
	switch cfg.Storage {
	case "redis":
		return storage.NewRedis(cfg.RedisURL)
	case "postgres":
		return storage.OpenPostgres(ctx, cfg.DatabaseURL)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return storage.NewFile(cfg.DataDir)
	}
}

func buildFetcher(cfg config.Config) (basedata.Fetcher, error) {
	if strings.TrimSpace(cfg.BaseURL) != "" {
		return basedata.HTTPFetcher{
			URL:    cfg.BaseURL,
			Client: &http.Client{Timeout: cfg.FetchTimeout},
		}, nil
	}
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		return basedata.NewS3Fetcher(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Object, cfg.S3UseSSL)
	}
	return basedata.FileFetcher{Path: cfg.BaseFile}, nil
}
