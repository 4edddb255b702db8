package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/manifest"
	"github.com/platinummonkey/modgraph/pkg/storage"
)

// options are shared by every subcommand
type options struct {
	manifestPath string
	json         bool
	includeDev   bool
}

// NewRootCommand creates the modgraphctl command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "modgraphctl",
		Short: "Inspect and plan changes to a module dependency graph",
		Long: `modgraphctl loads a YAML manifest of modules into a local engine and runs
graph queries against it: conflicts, dependency views, install order, version
suggestions, rollback checks and change propagation plans.

Nothing is written back to the manifest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.manifestPath, "manifest", "m", "modules.yaml", "Path to the module manifest")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVar(&opts.includeDev, "include-dev", false, "Check dev dependencies too")

	root.AddCommand(
		newCheckCommand(opts),
		newResolveCommand(opts),
		newDepsCommand(opts),
		newOrderCommand(opts),
		newGraphCommand(opts),
		newNextCommand(opts),
		newCompareCommand(opts),
		newValidateRollbackCommand(opts),
		newImpactCommand(opts),
	)
	return root
}

// loadEngine builds an in-memory engine seeded from the manifest
func (o *options) loadEngine(ctx context.Context) (*engine.Service, error) {
	m, err := manifest.Load(o.manifestPath)
	if err != nil {
		return nil, err
	}
	store := storage.NewMemoryStore()
	if _, err := manifest.Apply(ctx, store, m); err != nil {
		return nil, err
	}

	opts := engine.DefaultOptions()
	opts.IncludeDev = o.includeDev
	return engine.New(engine.Deps{
		Store:  store,
		Plans:  storage.NewMemoryPlanStore(),
		Locker: storage.NewLocalLocker(),
	}, opts)
}

// emit prints v as JSON when --json is set, otherwise calls text
func (o *options) emit(w io.Writer, v interface{}, text func(io.Writer)) error {
	if !o.json {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
