package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/fixture"
	"github.com/sells-group/intake-cli/internal/lookup"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load reference fixtures into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := fixture.LoadFile(seedFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := f.Apply(ctx, st, lookup.New(st)); err != nil {
			return err
		}

		zap.L().Info("seed complete", zap.String("file", seedFile))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "fixtures/seed.json", "path to seed fixture JSON")
	rootCmd.AddCommand(seedCmd)
}
