package main

import (
	"errors"
	"fmt"

	"github.com/loykin/sasswatch/pkg/client"
	"github.com/spf13/cobra"
)

// remoteCommand runs subcommands against a running daemon.
type remoteCommand struct {
	flags *GlobalFlags
}

func (r remoteCommand) client() *client.Client {
	return client.New(client.Config{BaseURL: r.flags.APIUrl, Timeout: r.flags.APITimeout})
}

func createLaunchCommand(r remoteCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <dir>",
		Short: "Start watching a directory on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := r.client().Launch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func createClearCommand(r remoteCommand) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [dir]",
		Short: "Stop watching a directory, or every directory with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := r.client()
			switch {
			case all:
				if err := c.ClearAll(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All watchers cleared")
				return nil
			case len(args) == 0:
				return errors.New("dir argument or --all required")
			}
			if err := c.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s cleared\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every watcher")
	return cmd
}

func createRelaunchCommand(r remoteCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "relaunch",
		Short: "Clear all watchers and relaunch the pending directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := r.client().Relaunch(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func createStatusCommand(r remoteCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show live watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := r.client().Watches(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), ws)
			return nil
		},
	}
}

func createDirsCommand(r remoteCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Manage the pending directory list",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := r.client().Dirs(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), dirs)
			return nil
		},
	}

	var launch bool
	add := &cobra.Command{
		Use:   "add <dir>",
		Short: "Add a directory to the pending list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.client().AddDir(cmd.Context(), args[0], launch)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), res)
			return nil
		},
	}
	add.Flags().BoolVar(&launch, "launch", false, "also launch a watcher for the directory")

	remove := &cobra.Command{
		Use:   "remove <dir>",
		Short: "Remove a directory from the pending list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := r.client().RemoveDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}
