package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/journalsync/internal/blob"
	"github.com/openmined/journalsync/internal/config"
	"github.com/openmined/journalsync/internal/sync"
	"github.com/openmined/journalsync/internal/version"
	"github.com/openmined/journalsync/internal/workspace"
)

var errPushIncomplete = errors.New("push finished with errors")

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

// app carries the state shared by subcommands. Each invocation builds its own
// so tests can run commands in-process.
type app struct {
	dir        string
	configPath string
	verbose    bool

	v         *viper.Viper
	factory   *blob.Factory
	ws        *workspace.Workspace
	cfg       *config.Config
	logCloser io.Closer
}

func newApp() *app {
	return &app{v: viper.New(), factory: blob.DefaultFactory()}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "journalsync",
		Short:   "Push a journal directory to a remote object store",
		Version: version.Detailed(),
	}
	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringVarP(&a.dir, "dir", "d", ".", "Journal directory to push")
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default <dir>/.journalsync/config.json)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(
		newPushCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load resolves the workspace, installs logging and reads the config. It runs
// as PreRunE of every command that touches the journal directory.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	ws, err := workspace.New(a.dir)
	if err != nil {
		return err
	}
	if err := ws.Setup(); err != nil {
		return err
	}
	a.ws = ws
	a.logCloser = setupLogging(cmd.ErrOrStderr(), ws.LogPath, a.verbose)

	if err := config.LoadEnvFile(ws.EnvPath); err != nil {
		return err
	}

	if flag := cmd.Flags().Lookup("concurrency"); flag != nil {
		if err := a.v.BindPFlag("sync.concurrency", flag); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v, a.resolvedConfigPath())
	if err != nil {
		return err
	}
	a.cfg = cfg

	slog.Debug("config loaded", "path", cfg.Path, "provider", cfg.Remote.Provider, "url", cfg.Remote.URL)
	return nil
}

func (a *app) resolvedConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return a.ws.ConfigPath
}

func (a *app) newEngine(out io.Writer, journal sync.Journal) (*sync.PushEngine, error) {
	return sync.NewPushEngine(&sync.PushEngineConfig{
		BaseDir:     a.ws.Root,
		Include:     a.cfg.Sync.Include,
		Exclude:     a.cfg.Sync.Exclude,
		Factory:     a.factory,
		Remote:      a.cfg.BlobConfig(config.LoadCredentials()),
		State:       config.NewFileStateStore(a.cfg.Path),
		Reporter:    sync.NewConsoleReporter(out, colorize(out)),
		Journal:     journal,
		Retry:       a.cfg.Retry,
		Concurrency: a.cfg.Sync.Concurrency,
	})
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func colorize(w io.Writer) bool {
	return w == os.Stdout && !color.NoColor
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp()
	err := a.rootCmd().ExecuteContext(ctx)
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
