package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/instrumentation"
)

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected accounts",
	}

	cmd.AddCommand(newAccountsListCmd(opts))
	cmd.AddCommand(newAccountsRemoveCmd(opts))
	cmd.AddCommand(newAccountsReconnectCmd(opts))

	return cmd
}

func newAccountsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			printAccounts(cmd.OutOrStdout(), a.accounts.List())
			return nil
		},
	}
}

func printAccounts(w io.Writer, accounts []account.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, `No accounts connected. Run "agenda login" to add one.`)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tCALENDARS\tSTATUS")
	for _, acc := range accounts {
		status := string(acc.Status.State)
		if status == "" {
			status = string(account.StateActive)
		}
		if acc.Status.IsError() && acc.Status.Message != "" {
			status += ": " + acc.Status.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			acc.ID, acc.Email, acc.Name, len(acc.VisibleCalendars()), len(acc.Calendars), status)
	}
	_ = tw.Flush()
}

func newAccountsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account>",
		Short: "Disconnect an account",
		Long: `Disconnect an account, given by ID or email. Its stored credentials and
calendar settings are deleted. Removing an unknown account does nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			change := instrumentation.NewAccountChange(instrumentation.ActionRemove).WithSpanContext(cmd.Context())
			if acc, err := a.account(args[0]); err == nil {
				id = acc.ID
				change.WithAccount(acc.ID, acc.Email)
			} else {
				change.WithAccount(id, "")
			}

			err = a.accounts.Remove(cmd.Context(), id)
			a.audit.Log(change.Complete(err))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			return nil
		},
	}
}

func newAccountsReconnectCmd(opts *rootOptions) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "reconnect <account>",
		Short: "Sign in again to an account whose credentials stopped working",
		Long: `Run the interactive login again for an existing account, for example
after "agenda accounts list" shows it in error status. The same Google
account must be chosen; calendar settings are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, opts, appOptions{authorizer: authorizer(cmd, noBrowser, cfg.Google.RedirectPort)})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireGoogle(); err != nil {
				return err
			}

			existing, err := a.account(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			change := instrumentation.NewAccountChange(instrumentation.ActionReconnect).
				WithAccount(existing.ID, existing.Email).
				WithSpanContext(ctx)

			acc, err := a.google.Reconnect(ctx, existing)
			if err == nil {
				err = a.accounts.Upsert(ctx, acc)
			}
			a.audit.Log(change.Complete(err))
			if err != nil {
				return fmt.Errorf("reconnect failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reconnected %s\n", acc.Email)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Paste the authorization code instead of using a local callback")

	return cmd
}
