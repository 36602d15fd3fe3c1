package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/instrumentation"
)

func newCalendarsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "Manage the calendars of connected accounts",
	}

	cmd.AddCommand(newCalendarsListCmd(opts))
	cmd.AddCommand(newCalendarsSyncCmd(opts))
	cmd.AddCommand(newCalendarsToggleCmd(opts))

	return cmd
}

func newCalendarsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <account>",
		Short: "List the calendars of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			acc, err := a.account(args[0])
			if err != nil {
				return err
			}
			printCalendars(cmd.OutOrStdout(), acc)
			return nil
		},
	}
}

func printCalendars(w io.Writer, acc account.Account) {
	if len(acc.Calendars) == 0 {
		fmt.Fprintf(w, "No calendars stored for %s. Run \"agenda calendars sync %s\".\n", acc.Email, acc.ID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VISIBLE\tID\tNAME\tCOLOR")
	for _, c := range acc.Calendars {
		visible := "[ ]"
		if c.Visible {
			visible = "[x]"
		}
		name := c.Summary
		if c.Primary {
			name += " (primary)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", visible, c.ID, name, c.BackgroundColor)
	}
	_ = tw.Flush()
}

func newCalendarsSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account]",
		Short: "Fetch the calendar list again",
		Long: `Fetch the calendar lists of all accounts, or of the given one. New calendars
become visible if they are selected in Google Calendar; the visibility of
known calendars is kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireGoogle(); err != nil {
				return err
			}

			targets := a.accounts.List()
			if len(args) == 1 {
				acc, err := a.account(args[0])
				if err != nil {
					return err
				}
				targets = []account.Account{acc}
			}

			ctx := cmd.Context()
			var errs []error
			for _, acc := range targets {
				change := instrumentation.NewAccountChange(instrumentation.ActionSync).
					WithAccount(acc.ID, acc.Email).
					WithSpanContext(ctx)

				synced, err := a.aggregator.SyncCalendars(ctx, acc)
				if err == nil {
					err = a.accounts.Upsert(ctx, synced)
				}
				a.audit.Log(change.Complete(err))
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", acc.Email, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d calendars for %s\n", len(synced.Calendars), acc.Email)
			}
			return errors.Join(errs...)
		},
	}
}

func newCalendarsToggleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <account> <calendar>",
		Short: "Show or hide a calendar in the timeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			acc, err := a.account(args[0])
			if err != nil {
				return err
			}
			if _, ok := acc.Calendar(args[1]); !ok {
				return fmt.Errorf("account %s has no calendar %q; see \"agenda calendars list %s\"", acc.Email, args[1], acc.ID)
			}

			ctx := cmd.Context()
			change := instrumentation.NewAccountChange(instrumentation.ActionToggle).
				WithAccount(acc.ID, acc.Email).
				WithCalendar(args[1]).
				WithSpanContext(ctx)
			err = a.accounts.ToggleCalendarVisibility(ctx, acc.ID, args[1])
			a.audit.Log(change.Complete(err))
			if err != nil {
				return err
			}

			updated, _ := a.accounts.Get(acc.ID)
			cal, _ := updated.Calendar(args[1])
			state := "hidden"
			if cal.Visible {
				state = "visible"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", calendarLabel(cal), state)
			return nil
		},
	}
}

func calendarLabel(c account.CalendarConfig) string {
	if c.Summary != "" {
		return c.Summary
	}
	return c.ID
}
