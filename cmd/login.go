package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/google"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/logging"
)

// authorizer returns the interactive authorizer for login and reconnect.
func authorizer(cmd *cobra.Command, noBrowser bool, port int) google.Authorizer {
	if noBrowser {
		return &google.PromptAuthorizer{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	}
	return &google.LoopbackAuthorizer{Port: port, Out: cmd.ErrOrStderr()}
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Connect a Google account",
		Long: `Connect a Google account and sync its calendars.

A consent URL is printed. After granting access, the browser is redirected
to a local callback that completes the login. With --no-browser, paste the
code (or the whole redirected URL) instead; use this on remote machines.

Logging in again with an account that is already connected updates its
credentials and keeps its calendar visibility.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			ctx := cmd.Context()
			change := instrumentation.NewAccountChange(instrumentation.ActionLogin).WithSpanContext(ctx)

			acc, err := a.google.Login(ctx)
			if err != nil {
				a.audit.Log(change.Complete(err))
				return fmt.Errorf("login failed: %w", err)
			}
			change.WithAccount(acc.ID, acc.Email)

			acc = a.syncOrKeep(cmd, acc)
			if err := a.accounts.Upsert(ctx, acc); err != nil {
				a.audit.Log(change.Complete(err))
				return err
			}
			a.audit.Log(change.Complete(nil))

			stored, _ := a.accounts.Get(acc.ID)
			printLoggedIn(cmd.OutOrStdout(), stored)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Paste the authorization code instead of using a local callback")

	return cmd
}

// syncOrKeep fetches the calendars of a freshly authorized account. A
// failed sync is not fatal: the account is stored without calendars and
// they are discovered on the next fetch.
func (a *app) syncOrKeep(cmd *cobra.Command, acc account.Account) account.Account {
	synced, err := a.aggregator.SyncCalendars(cmd.Context(), acc)
	if err != nil {
		logging.WithAccount(a.logger, acc.ID).Warn("Failed to sync calendars",
			logging.UserHash(acc.Email),
			logging.Err(err))
		return acc
	}
	return synced
}

func printLoggedIn(w io.Writer, acc account.Account) {
	fmt.Fprintf(w, "Connected %s (%s)\n", acc.Email, acc.ID)
	fmt.Fprintf(w, "%d calendars, %d visible\n", len(acc.Calendars), len(acc.VisibleCalendars()))
}
