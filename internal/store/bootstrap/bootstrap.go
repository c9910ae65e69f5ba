package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"posdash/internal/store"
	"posdash/internal/store/memory"
	"posdash/internal/store/postgres"
	"posdash/internal/store/sqlite"
)

type Options struct {
	DatabaseURL string
	Path        string
	DefaultPath string
}

// Result is the repository that was opened and how it was reached.
type Result struct {
	Repo     store.Repository
	Backend  string
	Location string
	Degraded bool
}

type opener func(ctx context.Context, path string) (store.Repository, error)

func openSQLite(ctx context.Context, path string) (store.Repository, error) {
	return sqlite.Open(ctx, path)
}

// Open selects a repository. An explicit DATABASE_URL must work or Open
// fails. Otherwise SQLite is tried at Path, then again after creating its
// directory, then at DefaultPath; if all of that fails the in-memory store
// is returned in degraded mode.
func Open(ctx context.Context, opts Options) (Result, error) {
	if opts.DatabaseURL != "" {
		pg, err := postgres.New(ctx, opts.DatabaseURL)
		if err != nil {
			return Result{}, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		log.Info().Str("component", "bootstrap").Str("backend", "postgres").Msg("repository ready")
		return Result{Repo: pg, Backend: "postgres", Location: "postgres"}, nil
	}
	return openFileChain(ctx, opts, openSQLite), nil
}

func openFileChain(ctx context.Context, opts Options, open opener) Result {
	logger := log.With().Str("component", "bootstrap").Logger()

	if opts.Path != "" {
		repo, err := open(ctx, opts.Path)
		if err == nil {
			logger.Info().Str("path", opts.Path).Msg("repository: sqlite")
			return Result{Repo: repo, Backend: "sqlite", Location: opts.Path}
		}
		logger.Warn().Err(err).Str("path", opts.Path).Msg("sqlite open failed, creating directory and retrying")

		dir := filepath.Dir(opts.Path)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			logger.Warn().Err(mkErr).Str("dir", dir).Msg("could not create database directory")
		} else if repo, err = open(ctx, opts.Path); err == nil {
			logger.Info().Str("path", opts.Path).Msg("repository: sqlite")
			return Result{Repo: repo, Backend: "sqlite", Location: opts.Path}
		} else {
			logger.Warn().Err(err).Str("path", opts.Path).Msg("sqlite retry failed")
		}
	}

	if opts.DefaultPath != "" && opts.DefaultPath != opts.Path {
		repo, err := open(ctx, opts.DefaultPath)
		if err == nil {
			logger.Warn().Str("path", opts.DefaultPath).Msg("repository: sqlite at default location")
			return Result{Repo: repo, Backend: "sqlite", Location: opts.DefaultPath}
		}
		logger.Warn().Err(err).Str("path", opts.DefaultPath).Msg("sqlite open at default location failed")
	}

	logger.Error().Msg("no writable database location, running in-memory; data will not survive a restart")
	return Result{Repo: memory.New(), Backend: "memory", Location: "memory", Degraded: true}
}
