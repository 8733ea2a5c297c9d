package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/lookup"
	"github.com/sells-group/intake-cli/internal/session"
	"github.com/sells-group/intake-cli/internal/wizard"
)

var submitFile string

// answersFile is the YAML schema for non-interactive submissions:
// field values keyed by wizard field name.
type answersFile struct {
	Fields map[string]string `yaml:"fields"`
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a contact from a YAML answers file",
	Long:  "Drives the intake wizard non-interactively: loads field values from a YAML file, walks the steps, and submits on the last one.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(submitFile)
		if err != nil {
			return eris.Wrap(err, "read answers file")
		}
		var answers answersFile
		if err := yaml.Unmarshal(data, &answers); err != nil {
			return eris.Wrap(err, "parse answers file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sessions := &session.StaticProvider{Session: &session.Session{
			UserID:      cfg.Session.UserID,
			DisplayName: cfg.Session.DisplayName,
			Admin:       cfg.Session.Admin,
		}}
		orch := intake.New(st, sessions, lookup.New(st))

		ctrl := wizard.New(wizard.NavigationMode(cfg.Wizard.NavigationMode), orch)
		for name, value := range answers.Fields {
			ctrl.SetField(name, value)
		}
		for range ctrl.Steps()[1:] {
			ctrl.Next()
		}

		contactID, err := ctrl.Submit(ctx)
		if err != nil {
			var vErr *intake.ValidationError
			if errors.As(err, &vErr) {
				for field, msg := range vErr.Fields {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
				}
				return eris.New("submission blocked by validation")
			}
			var profileErr *intake.ProfilePersistenceError
			if errors.As(err, &profileErr) {
				zap.L().Warn("contact saved without investigator profile",
					zap.String("contact_id", profileErr.ContactID),
					zap.Error(profileErr),
				)
				fmt.Println(profileErr.ContactID)
				return nil
			}
			return err
		}

		zap.L().Info("contact submitted", zap.String("contact_id", contactID))
		fmt.Println(contactID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitFile, "file", "", "path to YAML answers file (required)")
	_ = submitCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(submitCmd)
}
