package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/badge"
)

func newBadgeCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Print the countdown to the next primary event",
		Long: `Print the countdown to the next event of a primary calendar, like "15m",
"2h" or "3d", followed by its urgency tier and color. An event in progress
shows "now". Nothing is printed when there is no upcoming event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var b badge.Badge
			if accounts := a.accounts.List(); len(accounts) > 0 {
				if err := a.requireGoogle(); err != nil {
					return err
				}
				events, err := a.newLoader().LoadInitial(cmd.Context(), accounts)
				if err != nil {
					return err
				}
				b = badge.Compute(events, time.Now())
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			}
			if b.Text == "" {
				return nil
			}
			fmt.Fprintf(w, "%s\t%s\t%s", b.Text, b.Tier, b.Color)
			if b.Event != nil {
				fmt.Fprintf(w, "\t%s", eventTitle(*b.Event))
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the badge as JSON")

	return cmd
}
