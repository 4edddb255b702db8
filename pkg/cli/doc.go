// Package cli implements modgraphctl, a command line tool that loads a module
// manifest into a local in-memory engine and queries it.
//
// Commands:
//
//	check              validate the manifest
//	resolve            list conflicts and suggested resolutions (--strict fails on errors)
//	deps <module>      classified dependencies and dependents of a module
//	order              install order, dependencies first
//	graph              every edge with its status
//	next <version>     next version for --bump major|minor|patch
//	compare <m> <a> <b>        feature and breaking change diff of two versions
//	validate-rollback <m> <v>  rollback verdict for a module
//	impact <m> <v>             propagation plan for a version change
//
// Every command accepts --json for machine-readable output. The manifest is
// never modified.
package cli
