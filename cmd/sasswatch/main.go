package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	remote := remoteCommand{flags: globalFlags}

	root.AddCommand(
		createServeCommand(globalFlags),
		createWatchCommand(globalFlags),
		createLaunchCommand(remote),
		createClearCommand(remote),
		createRelaunchCommand(remote),
		createStatusCommand(remote),
		createDirsCommand(remote),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sasswatch",
		Short: "Sass watch-and-rebuild daemon",
		Long: `Sasswatch runs one sass --watch compiler per source directory and writes
minified, vendor-prefixed copies of every stylesheet it produces.

Examples:
  sasswatch serve sasswatch.toml        # Start daemon
  sasswatch watch scss themes           # Watch in the foreground, no API
  sasswatch dirs add scss --launch      # Ask a running daemon to watch scss
  sasswatch status --api-url=http://remote:7787/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (TOML, YAML, JSON or JSONC)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (default http://127.0.0.1:7787/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sasswatch version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sasswatch", version)
		},
	}
}
