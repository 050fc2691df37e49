package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/app"
	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/scheduler"
	"github.com/spf13/cobra"
)

func newCheckCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Re-check the availability of every file",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			st, err := a.Checker.CheckAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, available %d, unavailable %d\n", st.Checked, st.Available, st.Unavailable)
			return nil
		}),
	}
}

func newServiceCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage storage service configurations",
	}

	var (
		raw string
		lf  loginFlags
	)
	set := &cobra.Command{
		Use:   "set <name> <local|s3|ftp|webdav>",
		Short: "Store a service configuration, encrypted",
		Example: `  extmedia service set nas ftp --json '{"host":"nas.lan:21","root":"/media"}' --user media --ask-password
  extmedia service set archive s3 --json '{"bucket":"media","region":"eu-west-1"}'`,
		Args: cobra.ExactArgs(2),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			login, err := lf.login(cmd)
			if err != nil {
				return err
			}
			cfg, err := backends.DecodeConfig(args[1], json.RawMessage(raw))
			if err != nil {
				return err
			}
			if login != nil {
				cfg = backends.WithCredentials(cfg, login.Username, login.Password)
			}
			return a.Services.Save(args[0], args[1], cfg)
		}),
	}
	set.Flags().StringVar(&raw, "json", "{}", "service configuration as JSON")
	lf.register(set)

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored services",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			for _, name := range a.Services.Names() {
				svc, err := a.Services.Load(name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tunusable: %s\n", name, common.Reason(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, svc.Kind)
			}
			return nil
		}),
	}

	cmd.AddCommand(set, list)
	return cmd
}

func newEncryptCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [text]",
		Short: "Encrypt text with the stored key; prompts when no text is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				var err error
				if text, err = GetPassword(cmd.ErrOrStderr(), "Text"); err != nil {
					return err
				}
			}
			ct, err := a.Crypt.Encrypt(text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		}),
	}
}

func newDecryptCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Decrypt text produced by encrypt",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			pt, err := a.Crypt.Decrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pt)
			return nil
		}),
	}
}

func newScheduleCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run and configure periodic jobs",
	}

	var once bool
	run := &cobra.Command{
		Use:   "run [job]",
		Short: "Run the scheduler until interrupted, one tick, or one job now",
		Args:  cobra.MaximumNArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				return a.Scheduler.RunNow(ctx, args[0])
			}
			if once {
				ran, err := a.Scheduler.Tick(ctx, time.Now())
				for _, ev := range ran {
					fmt.Fprintln(cmd.OutOrStdout(), ev)
				}
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			a.Log.Info(ctx, "scheduler started")
			a.Scheduler.Run(ctx)
			a.Log.Info(context.Background(), "scheduler stopped")
			return nil
		}),
	}
	run.Flags().BoolVar(&once, "once", false, "run the due jobs once and exit")

	set := &cobra.Command{
		Use:   "set <job> <interval>",
		Short: "Set a job interval: hourly, twicedaily, daily, weekly, a duration or never",
		Args:  cobra.ExactArgs(2),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Scheduler.SetInterval(args[0], args[1])
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs with their interval and last run",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			jobs, err := a.Scheduler.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tINTERVAL\tLAST RUN")
			for _, j := range jobs {
				interval := scheduler.Never
				if d, err := a.Scheduler.Interval(j); err != nil {
					interval = "invalid"
				} else if d > 0 {
					interval = d.String()
				}
				last := "-"
				if t := a.Scheduler.LastRun(j.Event); !t.IsZero() {
					last = t.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", j.Event, interval, last)
			}
			return tw.Flush()
		}),
	}

	cmd.AddCommand(run, set, list)
	return cmd
}

// tunables are the runtime settings an operator may change.
var tunables = map[string]struct {
	key      string
	validate func(string) error
}{
	"allowed-mime-types": {common.SettingAllowedMimeTypes, func(string) error { return nil }},
	"always-download": {common.SettingAlwaysDownload, func(v string) error {
		_, err := strconv.ParseBool(v)
		return err
	}},
	"verbosity": {common.SettingLogVerbosity, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 3 {
			return errors.New("verbosity must be 0..3")
		}
		return nil
	}},
}

func newSetCmd(s *session) *cobra.Command {
	names := make([]string, 0, len(tunables))
	for name := range tunables {
		names = append(names, name)
	}
	return &cobra.Command{
		Use:       "set <setting> <value>",
		Short:     "Change a runtime setting",
		ValidArgs: names,
		Args:      cobra.ExactArgs(2),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			t, ok := tunables[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			value := strings.TrimSpace(args[1])
			if err := t.validate(value); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return a.Settings.Set(t.key, value)
		}),
	}
}

func newLogCmd(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent journal entries",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			entries, err := a.Logs.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Severity, e.Message, e.URL)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries shown")
	return cmd
}

func newMigrateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		}),
	}
}
