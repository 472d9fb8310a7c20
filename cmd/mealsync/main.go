// mealsync is the offline-first sync tool for the meal journal: it keeps a
// local SQLite cache converged with the remote Firestore document store and
// exposes journal operations on top of the cache.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mealjournal/mealsync/internal/cache"
	"github.com/mealjournal/mealsync/internal/config"
	"github.com/mealjournal/mealsync/internal/remote"
	"github.com/mealjournal/mealsync/internal/syncer"
)

var (
	flagConfig string
	flagUser   string
)

var rootCmd = &cobra.Command{
	Use:   "mealsync",
	Short: "Offline cache synchronization for the meal journal",
	Long: `mealsync keeps a local SQLite cache of the meal journal converged with
the remote document store.

Reads are always served from the cache, so the journal stays available
offline; mutations are written through to the remote store, which assigns
the timestamps that drive last-write-wins conflict resolution. Delta sync
fetches only documents stamped after the local cursor.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.mealsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "User id (overrides config)")
}

// loadConfig loads the configuration and resolves the effective user id.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	return cfg, nil
}

// requireUser returns the configured user id or fails the command.
func requireUser(cfg *config.Config) (string, error) {
	if cfg.UserID == "" {
		return "", fmt.Errorf("no user id: pass --user or set user_id in the config")
	}
	return cfg.UserID, nil
}

// newLogger builds a prefixed logger, mirroring output into the rotated
// log file when one is configured.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}

// openCache opens the local cache and ensures its schema exists.
func openCache(ctx context.Context, cfg *config.Config) (*cache.Store, error) {
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// dialRemote connects to the remote document store.
func dialRemote(ctx context.Context, cfg *config.Config, logger *log.Logger) (*remote.Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("no project id: set project_id in the config or MEALSYNC_PROJECT_ID")
	}
	return remote.Dial(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
}

// buildEngine wires the cache, the remote store, and the sync engine for a
// command invocation. The returned cleanup closes both stores.
func buildEngine(ctx context.Context, cfg *config.Config) (*syncer.Engine, *cache.Store, func(), error) {
	logger := newLogger(cfg, "[syncer] ")

	store, err := openCache(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	rem, err := dialRemote(ctx, cfg, newLogger(cfg, "[remote] "))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	engine := syncer.New(store, rem, syncer.Config{
		TombstoneRetention: cfg.TombstoneRetention,
		Logger:             logger,
	})

	cleanup := func() {
		_ = rem.Close()
		_ = store.Close()
	}
	return engine, store, cleanup, nil
}
