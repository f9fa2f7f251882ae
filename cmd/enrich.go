package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadfactor/enrich-cli/internal/enrich"
	"github.com/leadfactor/enrich-cli/internal/model"
)

var (
	enrichOwner  int64
	enrichLimit  int
	enrichForce  bool
	enrichScopes string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the enrichment pipeline",
	Long:  "Enriches client records for one owner (--owner) or several (--scopes). Ctrl-C finishes the in-flight batch and records a partial outcome.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidatePipeline(); err != nil {
			return err
		}

		scopes, err := resolveScopes()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runner := enrich.NewRunner(st, initLookup(), initReachability(), enrich.Config{
			BatchSize:   cfg.Enrich.BatchSize,
			RecordDelay: cfg.Enrich.RecordDelay(),
			MaxErrors:   cfg.Enrich.MaxErrors,
		})

		outcomes := make([]scopeOutcome, len(scopes))
		g, gctx := errgroup.WithContext(ctx)
		for i, scope := range scopes {
			g.Go(func() error {
				out, err := runner.Run(gctx, scope)
				if err != nil {
					return eris.Wrapf(err, "owner %d", scope.OwnerID)
				}
				outcomes[i] = scopeOutcome{OwnerID: scope.OwnerID, Outcome: out}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(outcomes) == 1 {
			return enc.Encode(outcomes[0].Outcome)
		}
		return enc.Encode(outcomes)
	},
}

type scopeOutcome struct {
	OwnerID int64               `json:"owner_id"`
	Outcome *model.BatchOutcome `json:"outcome"`
}

func resolveScopes() ([]enrich.Scope, error) {
	if enrichScopes != "" {
		if enrichOwner != 0 {
			return nil, eris.New("--owner and --scopes are mutually exclusive")
		}
		scopes, err := enrich.LoadScopes(enrichScopes)
		if err != nil {
			return nil, err
		}
		zap.L().Info("loaded scope file", zap.String("path", enrichScopes), zap.Int("scopes", len(scopes)))
		return scopes, nil
	}

	if enrichOwner == 0 {
		return nil, eris.New("--owner is required (or pass --scopes)")
	}
	return []enrich.Scope{{OwnerID: enrichOwner, Limit: enrichLimit, Force: enrichForce}}, nil
}

func init() {
	enrichCmd.Flags().Int64Var(&enrichOwner, "owner", 0, "owner ID whose records to enrich")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max records to process (0 = all)")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "re-enrich records already checked")
	enrichCmd.Flags().StringVar(&enrichScopes, "scopes", "", "path to a YAML scope file for multi-owner runs")
	rootCmd.AddCommand(enrichCmd)
}
