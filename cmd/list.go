package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected contacts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		countryID, _ := cmd.Flags().GetInt64("country-id")
		investigators, _ := cmd.Flags().GetBool("investigators-only")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.ContactFilter{
			InvestigatorsOnly: investigators,
			Limit:             limit,
			Offset:            offset,
		}
		// The review-status filter is an admin surface.
		if status != "" && cfg.Session.Admin {
			filter.Status = model.RecordStatus(status)
			if !filter.Status.Valid() {
				return eris.Errorf("unknown status: %s", status)
			}
		}
		if countryID > 0 {
			filter.CountryID = &countryID
		}

		details, err := st.ListContacts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list contacts")
		}

		if len(details) == 0 {
			fmt.Fprintln(os.Stderr, "No contacts found.")
			return nil
		}

		formatContactsList(os.Stdout, details)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <contact-id>",
	Short: "Show full details of a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		detail, err := st.GetContactDetail(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "show contact")
		}
		if detail == nil {
			return eris.Errorf("contact not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by record status (new, reviewed, archived; admin only)")
	listCmd.Flags().Int64("country-id", 0, "filter by resolved country reference id")
	listCmd.Flags().Bool("investigators-only", false, "only contacts with an investigator profile")
	listCmd.Flags().Int("limit", 50, "max number of contacts to display")
	listCmd.Flags().Int("offset", 0, "number of contacts to skip")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

// formatContactsList writes a tabular list of contacts to w.
func formatContactsList(out io.Writer, details []model.ContactDetail) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tORGANIZATION\tCOUNTRY\tSTATUS\tINV\tCREATED")
	for _, d := range details {
		c := d.Contact
		email := ""
		if c.Email != nil {
			email = *c.Email
		}
		inv := ""
		if d.Profile != nil {
			inv = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(c.ID), c.FirstName, c.LastName, email,
			d.OrganizationName, d.CountryName, c.Status, inv,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// shortID truncates a uuid for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
