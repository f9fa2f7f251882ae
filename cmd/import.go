package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfactor/enrich-cli/internal/importer"
)

var (
	importFile  string
	importOwner int64
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import client CPFs from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		seeds, err := importer.ReadSeeds(importFile)
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

		inserted, err := st.InsertClients(ctx, importOwner, seeds)
		if err != nil {
			return eris.Wrap(err, "import clients")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("rows", len(seeds)),
			zap.Int("inserted", inserted),
			zap.Int("skipped", len(seeds)-inserted),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().Int64Var(&importOwner, "owner", 0, "owner ID the records belong to (required)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(importCmd)
}
