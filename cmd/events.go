package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/timeline"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		pages      int
		jsonOutput bool
		cached     bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the merged timeline",
		Long: `Print the upcoming events of all visible calendars of all accounts, merged
and sorted by start time and grouped by day.

The timeline starts now and covers page_days days (14 by default). Use
--pages to load that many additional pages. --cached prints the window
stored by the last fetch without contacting Google.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			loader := a.newLoader()
			accounts := a.accounts.List()

			var events []calendar.Event
			switch {
			case cached:
				if events, err = loader.Cached(ctx); err != nil {
					return err
				}
			case len(accounts) == 0:
				printAccounts(cmd.OutOrStdout(), nil)
				return nil
			default:
				if err := a.requireGoogle(); err != nil {
					return err
				}
				if events, err = loadPages(ctx, loader, a.accounts.List, pages, a.logger); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printEventsJSON(cmd.OutOrStdout(), events)
			}
			// Refreshes during the fetch may have marked accounts failed.
			printTimeline(cmd.OutOrStdout(), events, a.accounts.List(), a.loc)
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 0, "Number of additional pages to load")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print events as JSON")
	cmd.Flags().BoolVar(&cached, "cached", false, "Print the cached window without fetching")

	return cmd
}

// pageLoader is the part of *timeline.Loader that loadPages uses.
type pageLoader interface {
	LoadInitial(ctx context.Context, accounts []account.Account) ([]calendar.Event, error)
	LoadMore(ctx context.Context, accounts []account.Account) (int, error)
	Events() []calendar.Event
	RangeEnd() time.Time
}

// loadPages loads the first window and pages more. Accounts are listed
// again for every page so refreshes made by earlier pages are used.
func loadPages(ctx context.Context, loader pageLoader, list func() []account.Account, pages int, logger *slog.Logger) ([]calendar.Event, error) {
	if _, err := loader.LoadInitial(ctx, list()); err != nil {
		return nil, err
	}
	for i := 0; i < pages; i++ {
		added, err := loader.LoadMore(ctx, list())
		if err != nil {
			return nil, fmt.Errorf("failed to load page %d: %w", i+2, err)
		}
		logger.Debug("Loaded page", "page", i+2, "added", added, "range_end", loader.RangeEnd())
	}
	return loader.Events(), nil
}

func printEventsJSON(w io.Writer, events []calendar.Event) error {
	if events == nil {
		events = []calendar.Event{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return errors.Join(errors.New("failed to encode events"), err)
	}
	return nil
}

func printTimeline(w io.Writer, events []calendar.Event, accounts []account.Account, loc *time.Location) {
	emails := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		emails[acc.ID] = acc.Email
		if acc.Status.IsError() {
			fmt.Fprintf(w, "! %s needs attention: %s (run \"agenda accounts reconnect %s\")\n", acc.Email, acc.Status.Message, acc.ID)
		}
	}

	if len(events) == 0 {
		fmt.Fprintln(w, "No upcoming events.")
		return
	}

	for i, day := range timeline.GroupByDay(events, loc) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, dayHeading(day.Date, loc))
		for _, ev := range day.Events {
			fmt.Fprintf(w, "  %-13s %s", eventTimeRange(ev, loc), eventTitle(ev))
			if email := emails[ev.AccountID]; email != "" {
				fmt.Fprintf(w, "  [%s]", email)
			}
			fmt.Fprintln(w)
			if link := ev.OpenURL(emails[ev.AccountID]); link != "" {
				fmt.Fprintf(w, "  %-13s %s\n", "", link)
			}
		}
	}
}

func dayHeading(date string, loc *time.Location) string {
	d, err := time.ParseInLocation(calendar.DateLayout, date, loc)
	if err != nil {
		return date
	}
	return d.Format("Monday, 2 January 2006")
}

func eventTimeRange(ev calendar.Event, loc *time.Location) string {
	if ev.Start.IsAllDay() {
		return "all day"
	}
	start := ev.Start.DateTime.In(loc).Format("15:04")
	if ev.End.IsAllDay() || ev.End.DateTime.IsZero() {
		return start
	}
	return start + "-" + ev.End.DateTime.In(loc).Format("15:04")
}

func eventTitle(ev calendar.Event) string {
	if ev.Summary == "" {
		return "(No title)"
	}
	return ev.Summary
}
