// Package main runs the simulated MFA management platform without external
// services. This is useful for:
// - Developing the enrollment flow against a local backend
// - Integration testing with httptest-style seeding
// - Reading issued passcodes straight from the server log
//
// Note: with the in-memory repository all data is lost when the server stops.
// Set MFA_PERSISTENCE_TYPE=postgres for durable storage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-mfa/pkg/config"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/tendant/simple-mfa/pkg/platform"
	"github.com/tendant/simple-mfa/pkg/platform/api"
)

type appConfig struct {
	Platform config.PlatformConfig
	SMTP     notification.SMTPConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional, real env vars win either way
	godotenv.Load()

	var cfg appConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}

	repo, err := buildRepository(cfg)
	if err != nil {
		slog.Error("Failed to build repository", "error", err)
		os.Exit(1)
	}

	service := platform.NewService(repo, buildNotifier(cfg),
		platform.WithDeviceLimit(cfg.Platform.DeviceLimit),
		platform.WithOTPExpiry(parseDuration(cfg.Platform.OTPExpiry, 5*time.Minute)),
		platform.WithResendThrottle(parseDuration(cfg.Platform.ResendThrottle, 30*time.Second)),
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	handle := api.NewHandle(service)
	if cfg.Platform.RequireAuth {
		jwtAuth := jwtauth.New("HS256", []byte(cfg.Platform.JwtSecret), nil)
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(jwtAuth))
			r.Use(jwtauth.Authenticator(jwtAuth))
			r.Mount("/", api.Handler(handle))
		})
	} else {
		r.Mount("/", api.Handler(handle))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Platform.Host, cfg.Platform.Port)
	slog.Info("Starting MFA platform simulator", "addr", addr,
		"persistence", cfg.Platform.PersistenceType, "requireAuth", cfg.Platform.RequireAuth)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// buildRepository reads the database config lazily so inmem deployments need
// no MFA_PG_* variables at all.
func buildRepository(cfg appConfig) (platform.DeviceRepository, error) {
	repoConfig := platform.RepositoryConfig{}
	if cfg.Platform.PersistenceType == "postgres" || cfg.Platform.PersistenceType == "postgresql" {
		dbConfig := config.NewDatabaseConfigFromEnv()
		pool, err := pgxpool.New(context.Background(), dbConfig.ToDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		repoConfig.DB = pool
	}
	return platform.NewDeviceRepository(cfg.Platform.PersistenceType, repoConfig)
}

// buildNotifier wires a log-backed notifier for every phone channel and SMTP
// for email when a username is configured, log otherwise.
func buildNotifier(cfg appConfig) *notification.Manager {
	manager := notification.NewManager()
	manager.Register(notification.ChannelSMS, &notification.LogNotifier{Channel: notification.ChannelSMS})
	manager.Register(notification.ChannelVoice, &notification.LogNotifier{Channel: notification.ChannelVoice})
	manager.Register(notification.ChannelWhatsApp, &notification.LogNotifier{Channel: notification.ChannelWhatsApp})

	if cfg.SMTP.Username != "" {
		emailNotifier, err := notification.NewEmailNotifier(cfg.SMTP)
		if err == nil {
			manager.Register(notification.ChannelEmail, emailNotifier)
			return manager
		}
		slog.Warn("Falling back to log delivery for email", "error", err)
	}
	manager.Register(notification.ChannelEmail, &notification.LogNotifier{Channel: notification.ChannelEmail})
	return manager
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
