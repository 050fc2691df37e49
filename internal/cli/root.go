// Package cli implements the extmedia command-line interface on top of the
// components wired by package app.
package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/extmedia/internal/app"
	"github.com/dmitrijs2005/extmedia/internal/config"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/spf13/cobra"
)

// openApp is a seam for tests.
var openApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log, err := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

// session opens the app on first use and closes it after the command.
type session struct {
	app *app.App
}

func (s *session) open(cmd *cobra.Command) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

// runFunc is a command body that needs the wired components.
type runFunc func(cmd *cobra.Command, a *app.App, args []string) error

// run opens the app for fn and closes it afterwards, whatever fn returns.
func (s *session) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := s.open(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, a, args)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:   "extmedia",
		Short: "Import, export and synchronize external media",
		Long: `extmedia references remotely hosted files as library entries without
copying their bytes, optionally caches or exports them to storage services
and keeps them in sync on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newImportCmd(s),
		newQueueCmd(s),
		newExportCmd(s),
		newRemoveCmd(s),
		newSyncCmd(s),
		newTermCmd(s),
		newCheckCmd(s),
		newServiceCmd(s),
		newEncryptCmd(s),
		newDecryptCmd(s),
		newScheduleCmd(s),
		newSetCmd(s),
		newLogCmd(s),
		newMigrateCmd(s),
	)
	return root
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
