package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/sasswatch"
	"github.com/spf13/cobra"
)

// ServeFlags holds serve command flags
type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

// WatchFlags holds watch command flags
type WatchFlags struct {
	Root     string
	Settings string
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config]",
		Short: "Start the sasswatch daemon",
		Long: `Start the daemon: relaunch every pending directory, then serve the HTTP API
until SIGINT or SIGTERM. SIGHUP reloads the editor settings file.

Examples:
  sasswatch serve                        # Defaults, or --config
  sasswatch serve sasswatch.toml         # Specific config file
  sasswatch serve --daemonize --pidfile=/run/sasswatch.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func runServe(parent context.Context, path string, flags *ServeFlags) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	ctx, stop := signalContext(parent)
	defer stop()

	svc, err := sasswatch.New(ctx, cfg)
	if err != nil {
		return err
	}
	go reloadOnHangup(ctx, svc)
	logOutcomes(svc.Logger(), svc.Relaunch(ctx))
	return svc.Serve(ctx)
}

// createWatchCommand creates the watch subcommand
func createWatchCommand(globalFlags *GlobalFlags) *cobra.Command {
	watchFlags := &WatchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Watch directories in the foreground without the API",
		Long: `Launch watchers for the given directories (plus the configured
watchDirectories) and run until interrupted.

Examples:
  sasswatch watch scss
  sasswatch watch --root=./site --settings=.vscode/settings.json themes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), globalFlags.ConfigPath, watchFlags, args)
		},
	}
	cmd.Flags().StringVar(&watchFlags.Root, "root", "", "project root (overrides config)")
	cmd.Flags().StringVar(&watchFlags.Settings, "settings", "", "editor settings file with compiler options")
	return cmd
}

func runWatch(parent context.Context, out io.Writer, path string, flags *WatchFlags, dirs []string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if flags.Root != "" {
		cfg.ProjectRoot = flags.Root
	}
	if flags.Settings != "" {
		cmp, err := sasswatch.LoadSettings(flags.Settings)
		if err != nil {
			return err
		}
		cfg.Compiler = cmp
		cfg.SettingsFile = flags.Settings
	}

	ctx, stop := signalContext(parent)
	defer stop()

	svc, err := sasswatch.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	for _, d := range dirs {
		svc.AddDir(d)
	}
	if len(svc.Dirs()) == 0 {
		return errors.New("no directories to watch")
	}

	outcomes := svc.Relaunch(ctx)
	printJSON(out, outcomeViews(outcomes))
	if len(svc.Snapshot()) == 0 {
		return errors.New("no watcher could be launched")
	}
	go reloadOnHangup(ctx, svc)
	<-ctx.Done()
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func reloadOnHangup(ctx context.Context, svc *sasswatch.Service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := svc.ReloadSettings(); err != nil {
				svc.Logger().Error("reload settings failed", "error", err)
				continue
			}
			svc.Logger().Info("settings reloaded")
		}
	}
}

func logOutcomes(log *slog.Logger, outcomes []sasswatch.Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			log.Error("relaunch failed", "dir", o.Dir, "error", o.Err)
			continue
		}
		log.Info(o.Message, "dir", o.Dir)
	}
}
