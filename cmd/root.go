package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	debug      bool
}

// rootCmd represents the base command for the agenda application
var rootCmd = newRootCmd()

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Merged agenda of multiple Google Calendar accounts",
		Long: `agenda merges the events of several Google accounts into one timeline.

Connect accounts with "agenda login", pick the calendars to show with
"agenda calendars toggle", then list upcoming events with "agenda events".
Expired access tokens are refreshed silently while fetching.

Configuration is read from $AGENDA_CONFIG or the agenda directory in the
user config dir. The OAuth client can also be set with GOOGLE_CLIENT_ID and
GOOGLE_CLIENT_SECRET.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the config file (default: $AGENDA_CONFIG or the user config dir)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newAccountsCmd(opts))
	cmd.AddCommand(newCalendarsCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	cmd.AddCommand(newBadgeCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agenda version %s\n" .Version}}`)

	// If no subcommand is provided, print the timeline by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "events")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
