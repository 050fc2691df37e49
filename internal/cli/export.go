package cli

import (
	"fmt"
	"sort"

	"github.com/dmitrijs2005/extmedia/internal/app"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/spf13/cobra"
)

func newExportCmd(s *session) *cobra.Command {
	var (
		lf     loginFlags
		queued bool
	)
	cmd := &cobra.Command{
		Use:   "export <file-id> <service> [target-url]",
		Short: "Copy a cached file to a storage service",
		Long: `Copy a cached file to a storage service. Without a target URL the key
is generated, which only object storage services allow. A target ending in
"/" receives the file under its title.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			login, err := lf.login(cmd)
			if err != nil {
				return err
			}
			var target string
			if len(args) == 3 {
				target = args[2]
			}

			if queued {
				e, err := a.Queue.Enqueue(cmd.Context(), target, models.OperationExport, models.QueueOptions{
					Import:  models.ImportOptions{Login: login},
					FileID:  args[0],
					Service: args[1],
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %d\n", e.ID)
				return nil
			}

			url, err := a.Exporter.Export(cmd.Context(), args[0], args[1], target, login)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		}),
	}
	lf.register(cmd)
	cmd.Flags().BoolVar(&queued, "queue", false, "defer the export to the next queue drain")

	var delLogin loginFlags
	del := &cobra.Command{
		Use:   "delete <file-id> <service>",
		Short: "Delete the exported copy of a file",
		Args:  cobra.ExactArgs(2),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			login, err := delLogin.login(cmd)
			if err != nil {
				return err
			}
			return a.Exporter.Delete(cmd.Context(), args[0], args[1], login)
		}),
	}
	delLogin.register(del)

	list := &cobra.Command{
		Use:   "list <file-id>",
		Short: "Show where a file was exported",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			exports, err := a.Exporter.Exports(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(exports))
			for name := range exports {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, exports[name])
			}
			return nil
		}),
	}

	cmd.AddCommand(del, list)
	return cmd
}

func newRemoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file-id>",
		Short: "Remove a file, its cached content and its exported copies",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Exporter.RemoveFile(cmd.Context(), args[0])
		}),
	}
}
