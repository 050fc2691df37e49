package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dmitrijs2005/extmedia/internal/app"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/spf13/cobra"
)

func newImportCmd(s *session) *cobra.Command {
	var (
		lf            loginFlags
		queued        bool
		requiresLogin bool
	)
	cmd := &cobra.Command{
		Use:   "import <url>...",
		Short: "Import files from URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			login, err := lf.login(cmd)
			if err != nil {
				return err
			}
			report, err := a.Importer.AddURLs(cmd.Context(), args, models.ImportOptions{
				Login:         login,
				RequiresLogin: requiresLogin,
				Queue:         queued,
			})
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), report.Results)
			if !report.Success {
				return fmt.Errorf("nothing imported")
			}
			return nil
		}),
	}
	lf.register(cmd)
	cmd.Flags().BoolVar(&queued, "queue", false, "defer the import to the next queue drain")
	cmd.Flags().BoolVar(&requiresLogin, "requires-login", false, "fail when no credentials are given")
	return cmd
}

func printResults(w io.Writer, results []models.URLResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		if r.OK {
			fmt.Fprintf(tw, "ok\t%s\t%s\t%s\n", r.Title, r.URL, r.FileID)
		} else {
			fmt.Fprintf(tw, "failed\t%s\t%s\n", r.URL, r.Reason)
		}
	}
	_ = tw.Flush()
}

func newQueueCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain deferred work",
	}

	var (
		lf            loginFlags
		requiresLogin bool
	)
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Queue an import",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			login, err := lf.login(cmd)
			if err != nil {
				return err
			}
			e, err := a.Queue.Enqueue(cmd.Context(), args[0], models.OperationImport, models.QueueOptions{
				Import: models.ImportOptions{Login: login, RequiresLogin: requiresLogin},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d\n", e.ID)
			return nil
		}),
	}
	lf.register(add)
	add.Flags().BoolVar(&requiresLogin, "requires-login", false, "fail when no credentials are given")

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Process one batch of queued entries",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			st, err := a.Queue.Process(cmd.Context())
			if err != nil {
				return err
			}
			if st.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "another drain is running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed %d, done %d, failed %d, released %d, evicted %d\n",
				st.Claimed, st.Done, st.Failed, st.Released, st.Evicted)
			return nil
		}),
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List queued entries",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			entries, err := a.Queue.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOPERATION\tSTATE\tATTEMPTS\tURL\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", e.ID, e.Operation, e.State, e.Attempts, common.RedactURL(e.URL), e.Error)
			}
			return tw.Flush()
		}),
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum entries shown")

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed entry so the next drain picks it up",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return a.Queue.Retry(cmd.Context(), id)
		}),
	}

	cmd.AddCommand(add, drain, list, retry)
	return cmd
}
