package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/export"
	"github.com/sells-group/intake-cli/internal/store"
)

var (
	exportFormat string
	exportPath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export contacts to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !cfg.Session.Admin {
			return eris.New("export requires an admin session (INTAKE_SESSION_ADMIN)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		details, err := st.ListContacts(ctx, store.ContactFilter{})
		if err != nil {
			return eris.Wrap(err, "export read")
		}

		format := exportFormat
		if format == "" {
			format = cfg.Export.Format
		}
		path := exportPath
		if path == "" {
			path = cfg.Export.Path
		}

		switch format {
		case "csv":
			err = export.WriteCSVFile(path, details)
		case "xlsx":
			err = export.WriteXLSX(path, details)
		default:
			return eris.Errorf("unsupported export format: %s", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("format", format),
			zap.String("path", path),
			zap.Int("contacts", len(details)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or xlsx (default from config)")
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output file path (default from config)")
	rootCmd.AddCommand(exportCmd)
}
