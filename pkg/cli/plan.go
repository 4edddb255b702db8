package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/modgraph/pkg/impact"
)

func newValidateRollbackCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-rollback <module> <version>",
		Short: "Check whether a module can be rolled back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.ValidateRollback(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), v, func(w io.Writer) {
				verdict := "valid"
				if !v.IsValid {
					verdict = "invalid"
				}
				fmt.Fprintf(w, "rollback %s %s -> %s: %s\n", v.ModuleKey, v.InstalledVersion, v.TargetVersion, verdict)
				fmt.Fprintf(w, "data loss risk: %s, downtime: %s\n", v.DataLossRisk, v.EstimatedDowntime)
				for _, e := range v.Errors {
					fmt.Fprintf(w, "error: %s\n", e)
				}
				for _, warning := range v.Warnings {
					fmt.Fprintf(w, "warning: %s\n", warning)
				}
			})
		},
	}
}

func newImpactCommand(opts *options) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "impact <module> <version>",
		Short: "Plan the propagation of a version change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			plan, err := svc.AnalyzeChangePropagation(cmd.Context(), args[0], impact.Change{
				TargetVersion: args[1],
				Description:   description,
			})
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), plan, func(w io.Writer) {
				fmt.Fprintf(w, "%s -> %s: total risk %s\n", plan.SourceModule, plan.Change.TargetVersion, plan.TotalRisk)
				if len(plan.AffectedModules) == 0 {
					fmt.Fprintln(w, "No dependents affected.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODULE\tDISTANCE\tVIA\tRISK\tRANGE")
				for _, a := range plan.AffectedModules {
					rng := a.Range
					if a.RangeViolated {
						rng += " (violated)"
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", a.ModuleKey, a.Distance, a.Via, a.Risk, rng)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Change description recorded on the plan")
	return cmd
}
