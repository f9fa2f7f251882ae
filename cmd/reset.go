package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetOwner int64

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the checked flag for an owner's records",
	Long:  "Makes an owner's records eligible for re-enrichment without re-running with --force.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ResetChecked(ctx, resetOwner)
		if err != nil {
			return eris.Wrap(err, "reset checked")
		}

		zap.L().Info("reset complete",
			zap.Int64("owner_id", resetOwner),
			zap.Int64("records", n),
		)
		return nil
	},
}

func init() {
	resetCmd.Flags().Int64Var(&resetOwner, "owner", 0, "owner ID (required)")
	_ = resetCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(resetCmd)
}
