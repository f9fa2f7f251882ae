package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfactor/enrich-cli/internal/config"
	"github.com/leadfactor/enrich-cli/internal/store"
	"github.com/leadfactor/enrich-cli/pkg/lookup"
	"github.com/leadfactor/enrich-cli/pkg/reachability"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "enrich-cli",
	Short: "CPF batch enrichment pipeline",
	Long:  "Pulls unchecked client records, enriches them through an identity lookup API, verifies messaging reachability, and persists the merged result.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enrich.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initLookup() lookup.Client {
	return lookup.NewClient(
		cfg.Lookup.URLTemplate,
		cfg.Lookup.Token,
		cfg.Lookup.Module,
		lookup.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Lookup.TimeoutSecs) * time.Second}),
	)
}

func initReachability() reachability.Client {
	return reachability.NewClient(
		cfg.Reachability.URL,
		cfg.Reachability.TokenList(),
		reachability.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Reachability.TimeoutSecs) * time.Second}),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
