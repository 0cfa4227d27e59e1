package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	flagYes     bool
	flagProfile string
	flagQuery   bool
	flagNXM     string
)

// rootCmd is the single installer command: collection in, MO2 instance out
var rootCmd = &cobra.Command{
	Use:   "nexusbridge <collection-url | collection.json> <mo2-path>",
	Short: "Install a Nexus Mods collection into a Mod Organizer 2 instance",
	Long: `nexusbridge downloads and installs a Nexus Mods collection directly into
a Mod Organizer 2 instance: archives land in <mo2>/downloads, each mod in
its own folder under <mo2>/mods, and the profile receives a sorted
modlist.txt and plugins.txt.

The Nexus API key is read from nexus_apikey.txt in the working directory,
from apikey.txt in the nexusbridge config directory, or from the
NEXUS_APIKEY environment variable.`,
	Version:       version,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "continue without prompting when some downloads fail")
	rootCmd.Flags().StringVar(&flagProfile, "profile", "", "MO2 profile to write (default from config, else Default)")
	rootCmd.Flags().BoolVar(&flagQuery, "query", false, "only analyse the collection and print a machine-readable summary")
	rootCmd.Flags().StringVar(&flagNXM, "nxm", "", "satisfy one queued download from an nxm:// link and exit")
}

// Execute runs the root command. Exit codes: 0 = success, 1 = any fatal
// error including a non-zero install failure count.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}
