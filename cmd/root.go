package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calbridge application
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calbridge",
		Short: "Reads and writes events across Google, Outlook and CalDAV calendars",
		Long: `calbridge treats the Google, Outlook and CalDAV calendars of a user as one
calendar. Reads merge the events of every backend the user is connected to;
writes are sent to each of them concurrently.

Backends are configured through environment variables (or an .env file).
A user is connected to a backend when the credentials file holds a token
for it.`,
		SilenceUsage: true,
	}

	addGlobalFlags(cmd)
	cmd.AddCommand(newProvidersCmd())
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calbridge version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
