package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/modgraph/pkg/semver"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

func newNextCommand(opts *options) *cobra.Command {
	var bump string
	cmd := &cobra.Command{
		Use:   "next <version>",
		Short: "Suggest the next version for a bump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := semver.ParseBump(bump)
			if err != nil {
				return err
			}
			next, err := versioning.SuggestNext(args[0], b)
			if err != nil {
				return err
			}
			out := map[string]string{"current": args[0], "bump": b.String(), "next": next}
			return opts.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintln(w, next)
			})
		},
	}
	cmd.Flags().StringVar(&bump, "bump", "patch", "Bump kind: major, minor or patch")
	return cmd
}

func newCompareCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <module> <from> <to>",
		Short: "Diff two published versions of a module",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			diff, err := svc.CompareVersions(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), diff, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s -> %s: suggested bump %s\n", diff.ModuleKey, diff.From, diff.To, diff.SuggestedBump)
				if len(diff.AddedFeatures) > 0 {
					fmt.Fprintf(w, "added: %s\n", strings.Join(diff.AddedFeatures, ", "))
				}
				if len(diff.RemovedFeatures) > 0 {
					fmt.Fprintf(w, "removed: %s\n", strings.Join(diff.RemovedFeatures, ", "))
				}
				for _, bc := range diff.BreakingChanges {
					fmt.Fprintf(w, "breaking: %s\n", bc.Description)
				}
			})
		},
	}
}
