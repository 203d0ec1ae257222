// Package engine provides the core types and machinery of the openconverge
// single-host convergence engine.
//
// # Overview
//
// A convergence run moves through three phases:
//
//  1. Compile - parameters and facts become a Catalog of desired resources
//     (package compiler)
//  2. Resolve - the Resolver validates the catalog and orders it into apply
//     batches over the requires relation
//  3. Apply - the Applier invokes resource providers batch by batch and
//     produces a RunReport
//
// # Core Domain Types
//
//   - Resource: a declared unit of desired host state, identified by
//     (type, title)
//   - Catalog: the insertion-ordered resource set with identity registry
//   - OrderedPlan: apply batches plus precomputed refresh target lists
//   - RunReport: per-resource outcomes and overall run status
//
// # Relations
//
// Requires edges impose a partial order: a predecessor's outcome is finalized
// strictly before its dependent is applied, and a failed predecessor skips
// its dependents transitively. Notify edges are a separate relation used only
// for refresh propagation; they never impose ordering. A notified resource
// receives at most one refresh per run, delivered after its own apply step,
// regardless of how many notifiers changed.
//
// # Providers
//
// The engine consumes per-type Provider capabilities (Read/Apply, optionally
// Refresh) and never mutates the host itself. Apply must be idempotent: a
// second run over a converged host reports every resource unchanged and
// performs zero mutations.
//
// # Error Classification
//
// Errors are classified by failure domain:
//
//   - compile: no plan produced, nothing mutated
//   - apply: one resource failed; dependents skipped, the run continues
//   - provider_unavailable: a capability is missing; fails only the
//     affected resources
package engine
