// Package manifest reads YAML manifests describing modules, their
// dependencies and published versions, and applies them to a store.
//
//	modules:
//	  - key: core
//	    installed_version: 1.5.0
//	    is_core: true
//	    minimum_version: 1.2.0
//	    versions:
//	      - version: 1.6.0
//	        tag: stable
//	        changelog: ["faster graph builds"]
//	  - key: billing
//	    installed_version: 2.0.0
//	    config:
//	      currency: EUR
//	    dependencies:
//	      - key: core
//	        range: ^1.6.0
//	        is_required: true
//
// Apply seeds a store directly. A running server hands Manifest.Diff to
// engine.Service.Reconcile instead, and Watcher triggers that on every save.
package manifest
