package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"posdash/internal/cache"
	"posdash/internal/config"
	"posdash/internal/httpapi"
	"posdash/internal/loyverse"
	"posdash/internal/scheduler"
	"posdash/internal/service"
	"posdash/internal/store/bootstrap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid report timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	opened, err := bootstrap.Open(ctx, bootstrap.Options{
		DatabaseURL: cfg.DatabaseURL,
		Path:        cfg.DatabasePath,
		DefaultPath: cfg.DefaultDatabasePath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("refusing to start without the configured database")
	}
	closers = append(closers, opened.Repo.Close)
	if opened.Degraded {
		log.Warn().Str("backend", opened.Backend).Msg("running on the in-memory store; data will not survive a restart")
	}

	metadataCache := cache.MetadataCache(cache.NoopMetadataCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisMetadataCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, metadata fetches are not cached")
		} else {
			metadataCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	upstream := loyverse.New(loyverse.Config{
		BaseURL:           cfg.LoyverseBaseURL,
		Token:             cfg.LoyverseToken,
		PageLimit:         cfg.LoyversePageLimit,
		RequestsPerSecond: cfg.LoyverseRatePerSec,
	})
	if !upstream.Configured() {
		log.Warn().Msg("LOYVERSE_TOKEN is not set; sync endpoints will answer 503")
	}

	svc := service.New(opened.Repo, upstream, metadataCache, service.Options{
		Location:       loc,
		CreditKeywords: cfg.CreditKeywords(),
		MetadataTTL:    cfg.MetadataTTL(),
		ForecastTTL:    cfg.ForecastTTL(),
		Degraded:       opened.Degraded,
	})
	if err := svc.RefreshReferences(ctx); err != nil {
		log.Warn().Err(err).Msg("reference data not loaded; names will show as unknown until the next metadata sync")
	} else if missing := svc.MissingReferences(); len(missing) > 0 {
		log.Info().Strs("kinds", missing).Msg("no reference names stored yet for some kinds; run a metadata sync")
	}

	var sched *scheduler.Scheduler
	if cfg.SyncSchedule != "" && upstream.Configured() {
		sched, err = scheduler.New(svc, cfg.SyncSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid SYNC_SCHEDULE")
		}
		sched.Start()
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.DashboardPassword)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Sync and export requests run for as long as the upstream walk takes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("backend", opened.Backend).Str("location", opened.Location).Msg("posdash listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// setupLogging prints human-readable logs in development and JSON otherwise.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DashboardPassword == "" {
		return fmt.Errorf("DASHBOARD_PASSWORD must be set")
	}
	if err := validatePasswordStrength(cfg.DashboardPassword); err != nil {
		return fmt.Errorf("DASHBOARD_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects short, single-character and well-known
// passwords. A bcrypt hash is trusted as given.
func validatePasswordStrength(password string) error {
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		return nil
	}
	if len(password) < 10 {
		return fmt.Errorf("at least 10 characters required")
	}

	known := map[string]bool{
		"password123": true, "password1234": true, "1234567890": true,
		"0123456789": true, "qwertyuiop": true, "administrator": true,
		"changeme123": true, "letmein1234": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character password not allowed")
	}
	return nil
}
