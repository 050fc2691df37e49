package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/extmedia/internal/app"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/synchronizer"
	"github.com/spf13/cobra"
)

func newSyncCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [term]",
		Short: "Synchronize one directory term, or every enabled one",
		Args:  cobra.MaximumNArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx := cmd.Context()

			var list []*models.DirectoryTerm
			if len(args) == 1 {
				t, err := a.Terms.GetByName(ctx, args[0])
				if err != nil {
					return fmt.Errorf("term %s: %w", args[0], err)
				}
				list = append(list, t)
			} else {
				var err error
				if list, err = a.Terms.List(ctx, true); err != nil {
					return err
				}
			}

			var errs []error
			for _, t := range list {
				res, err := a.Sync.SyncTerm(ctx, t.ID)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
					continue
				}
				printSync(cmd.OutOrStdout(), t.Name, res)
			}
			return errors.Join(errs...)
		}),
	}
}

func printSync(w io.Writer, name string, r synchronizer.Result) {
	if r.Skipped {
		fmt.Fprintf(w, "%s: skipped\n", name)
		return
	}
	fmt.Fprintf(w, "%s: %d listed, %d added, %d failed, %d pruned, %d restored\n",
		name, r.Listed, r.Added, r.Failed, r.Pruned, r.Restored)
}

func newTermCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "term",
		Short: "Manage directory terms",
	}

	var recursive, disabled bool
	add := &cobra.Command{
		Use:   "add <name> <service> <directory-url>",
		Short: "Bind a remote directory to the library",
		Args:  cobra.ExactArgs(3),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			if _, err := a.Services.Load(args[1]); err != nil {
				return err
			}
			t := &models.DirectoryTerm{
				Name:         args[0],
				Service:      args[1],
				DirectoryURL: args[2],
				Enabled:      !disabled,
				Recursive:    recursive,
			}
			if err := a.Terms.Create(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		}),
	}
	add.Flags().BoolVar(&recursive, "recursive", false, "descend into subdirectories")
	add.Flags().BoolVar(&disabled, "disabled", false, "create the term disabled")

	list := &cobra.Command{
		Use:   "list",
		Short: "List directory terms",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			terms, err := a.Terms.List(cmd.Context(), false)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSERVICE\tENABLED\tRECURSIVE\tDIRECTORY")
			for _, t := range terms {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", t.Name, t.Service, t.Enabled, t.Recursive, t.DirectoryURL)
			}
			return tw.Flush()
		}),
	}

	setEnabled := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <name>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
				t, err := a.Terms.GetByName(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.Terms.SetEnabled(cmd.Context(), t.ID, enabled)
			}),
		}
	}

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a term; its files stay in the library",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(cmd *cobra.Command, a *app.App, args []string) error {
			t, err := a.Terms.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.Terms.Delete(cmd.Context(), t.ID)
		}),
	}

	cmd.AddCommand(add, list,
		setEnabled("enable", "Enable a term", true),
		setEnabled("disable", "Disable a term", false),
		remove)
	return cmd
}
