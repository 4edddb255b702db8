package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/manifest"
)

// ErrConflictsFound is returned by resolve when error-severity conflicts exist
var ErrConflictsFound = errors.New("unresolved conflicts")

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(opts.manifestPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d modules OK\n", opts.manifestPath, len(m.Modules))
			return nil
		},
	}
}

func newResolveCommand(opts *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "List dependency conflicts with suggested resolutions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.Resolve(cmd.Context())
			if err != nil {
				return err
			}

			if err := opts.emit(cmd.OutOrStdout(), result, func(w io.Writer) { printConflicts(w, result) }); err != nil {
				return err
			}
			if strict && conflicts.HasErrors(result.Conflicts) {
				return ErrConflictsFound
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when error-severity conflicts exist")
	return cmd
}

func printConflicts(w io.Writer, result *engine.ResolveResult) {
	if len(result.Conflicts) == 0 {
		fmt.Fprintln(w, "No conflicts.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSEVERITY\tSUGGESTION\tMESSAGE")
		for _, r := range result.Conflicts {
			suggestion := r.SuggestedResolution
			if suggestion == "" {
				suggestion = "-"
			} else if !r.AutoResolvable {
				suggestion += " (manual)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Severity, suggestion, r.Message)
		}
		tw.Flush()
	}
	for _, c := range result.Cycles {
		fmt.Fprintf(w, "cycle: %s\n", c)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func newDepsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <module>",
		Short: "Show a module's dependencies and dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.FetchDependencies(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), view, func(w io.Writer) {
				level := fmt.Sprint(view.Level)
				if !view.LevelDefined {
					level = "undefined"
				}
				fmt.Fprintf(w, "%s %s (level %s)\n", view.ModuleKey, view.InstalledVersion, level)

				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DEPENDENCY\tRANGE\tINSTALLED\tSTATUS")
				for _, e := range view.Dependencies {
					installed := e.InstalledVersion
					if installed == "" {
						installed = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.To, e.Range, installed, e.Status)
				}
				tw.Flush()

				if len(view.Dependents) > 0 {
					from := make([]string, 0, len(view.Dependents))
					for _, d := range view.Dependents {
						from = append(from, d.From)
					}
					fmt.Fprintf(w, "dependents: %s\n", strings.Join(from, ", "))
				}
			})
		},
	}
}

func newOrderCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print modules with every dependency before its dependents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			order, err := svc.Order(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), order, func(w io.Writer) {
				for _, key := range order {
					fmt.Fprintln(w, key)
				}
			})
		},
	}
}

func newGraphCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print nodes and classified edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.Graph(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), view, func(w io.Writer) {
				for _, e := range view.Edges {
					fmt.Fprintf(w, "%s -> %s %s [%s]\n", e.From, e.To, e.Range, e.Status)
				}
			})
		},
	}
}
