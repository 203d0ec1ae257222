// Package compiler builds resource catalogs from parameters and facts.
//
// Compilation is the first phase of a convergence run. The compiler emits the
// unconditional agent resources, composes fact-driven platform branches as
// pure functions, selects the agent execution mechanism through a one-shot
// run-style selector, and derives the periodic schedule from a deterministic
// per-host jitter generator. Inputs arrive fully resolved: manifest parsing
// and hierarchical default lookup happen outside the engine.
package compiler
