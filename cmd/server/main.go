package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sensus/peek/internal/config"
	"github.com/sensus/peek/internal/handlers"
	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/services"
	"github.com/sensus/peek/internal/storage"
	"github.com/sensus/peek/internal/storage/disk"
	"github.com/sensus/peek/internal/storage/memory"
	"github.com/sensus/peek/internal/storage/minio"
	"github.com/sensus/peek/internal/storage/mongo"
	"github.com/sensus/peek/internal/storage/sqlite"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (env vars override it)")
	pflag.Parse()

	cfg := config.MustLoad(*configPath)

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	shots, err := openScreenshots(ctx, cfg.Screenshots)
	if err != nil {
		return err
	}

	// Push is optional; without VAPID keys updates are saved but nobody is notified.
	var (
		sender   services.PushSender
		notifier services.Notifier
	)
	if cfg.Push.PushEnabled() {
		sender = services.NewVAPIDSender(services.VAPIDConfig{
			PublicKey:  cfg.Push.VAPIDPublicKey,
			PrivateKey: cfg.Push.VAPIDPrivateKey,
			Subject:    cfg.Push.Subject,
			TTL:        cfg.Push.TTL,
		}, &http.Client{Timeout: cfg.Push.Timeout})
	} else {
		logging.Warn().Msg("VAPID keys not configured, push notifications disabled")
	}
	pushService := services.NewPushService(store, sender, cfg.Push.VAPIDPublicKey)
	if sender != nil {
		notifier = pushService
	}

	profileService := services.NewProfileService(store, shots, notifier,
		services.WithPushTimeout(cfg.Push.Timeout))

	var authService *services.AuthService
	if cfg.Auth.Enabled {
		authService = services.NewAuthService(store, profileService, services.AuthConfig{
			AdminKey:  cfg.Auth.AdminKey,
			JWTSecret: cfg.Auth.JWTSecret,
			TokenTTL:  cfg.Auth.TokenTTL,
		})
	}

	router := handlers.NewRouter(handlers.Deps{
		Profiles:        profileService,
		Push:            pushService,
		Auth:            authService,
		AuthEnabled:     cfg.Auth.Enabled,
		AuthRateLimit:   cfg.Auth.RateLimit,
		MaxUploadSizeMB: cfg.Screenshots.MaxUploadSizeMB,
		RequestTimeout:  cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", cfg.ServerAddress).
			Str("env", cfg.Env).
			Str("storage", cfg.Storage.Driver).
			Str("screenshots", cfg.Screenshots.Driver).
			Bool("auth", cfg.Auth.Enabled).
			Bool("push", sender != nil).
			Msg("peek server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http shutdown incomplete")
	}

	// In-flight notifications finish before the store goes away.
	profileService.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return mongo.New(connectCtx, cfg.MongoURI, cfg.MongoDB)
	case "memory":
		logging.Warn().Msg("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

func openScreenshots(ctx context.Context, cfg config.ScreenshotsConfig) (storage.Screenshots, error) {
	if cfg.Driver == "minio" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return minio.New(connectCtx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
		})
	}
	return disk.New(cfg.UploadDir)
}
