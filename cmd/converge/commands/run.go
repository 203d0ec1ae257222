package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/openconverge/openconverge/pkg/compiler"
	"github.com/openconverge/openconverge/pkg/engine"
	"github.com/openconverge/openconverge/pkg/providers/memory"
	"github.com/openconverge/openconverge/pkg/telemetry"
)

// managedTypes are the resource types the built-in registry serves.
var managedTypes = []string{
	engine.TypePackage,
	engine.TypeService,
	engine.TypeCron,
	engine.TypeUser,
	engine.TypeGroup,
	engine.TypeFile,
	engine.TypeSetting,
	engine.TypeDefaults,
}

// newRegistry builds the provider registry backing a run. Providers are
// in-memory: they simulate host state, which makes every run a dry run until
// OS-backed providers are registered in their place.
func newRegistry() *memory.Registry {
	return memory.NewRegistryFor(managedTypes...)
}

// loadInputs reads and validates the parameter and fact files named by the
// global flags.
func loadInputs() (*compiler.ParameterSet, engine.FactSet, error) {
	params, err := compiler.LoadParameters(paramsPath)
	if err != nil {
		return nil, engine.FactSet{}, err
	}
	facts, err := compiler.LoadFacts(factsPath)
	if err != nil {
		return nil, engine.FactSet{}, err
	}
	return params, facts, nil
}

// resolvePlan compiles the catalog and resolves it into an ordered plan.
func resolvePlan(params *compiler.ParameterSet, facts engine.FactSet, clog zerolog.Logger) (*engine.OrderedPlan, error) {
	cat, err := compiler.NewCompiler(compiler.WithLogger(clog)).Compile(params, facts)
	if err != nil {
		return nil, err
	}
	return engine.NewResolver().Resolve(cat)
}

// runConvergence performs one full convergence run: compile, resolve, apply.
// Compile and resolve failures yield a compile-failure report rather than an
// error, so callers can persist and render every run uniformly. A nil tracer
// disables span recording.
func runConvergence(ctx context.Context, registry engine.Registry, metrics engine.MetricsRecorder, tracer *telemetry.Tracer, parallelism int) *engine.RunReport {
	params, facts, err := loadInputs()
	if err != nil {
		return engine.NewCompileFailureReport(uuid.New().String(), err)
	}

	var compileSpan trace.Span
	if tracer != nil {
		_, compileSpan = tracer.StartCompileSpan(ctx, facts.FQDN())
	}
	plan, err := resolvePlan(params, facts, log.Logger)
	if compileSpan != nil {
		telemetry.RecordError(compileSpan, err)
		compileSpan.End()
	}
	if err != nil {
		return engine.NewCompileFailureReport(uuid.New().String(), err)
	}

	var applySpan trace.Span
	if tracer != nil {
		ctx, applySpan = tracer.StartApplySpan(ctx)
	}

	opts := []engine.ApplierOption{
		engine.WithLogger(log.Logger),
		engine.WithMaxParallel(parallelism),
	}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}

	report := engine.NewApplier(registry, opts...).Apply(ctx, plan)
	if applySpan != nil {
		applySpan.SetAttributes(
			telemetry.AttrRunID.String(report.ID),
			telemetry.AttrRunStatus.String(string(report.Status)),
		)
		if report.Failed() {
			telemetry.RecordError(applySpan, errors.New(string(report.Status)))
		} else {
			telemetry.RecordSuccess(applySpan)
		}
		applySpan.End()
	}
	return report
}

// printReport renders a run report as JSON or a human-readable summary.
func printReport(report *engine.RunReport) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Run %s: %s\n", report.ID, report.Status)
	if report.Error != "" {
		fmt.Printf("  error: %s\n", report.Error)
		return nil
	}
	for _, res := range report.Resources {
		line := fmt.Sprintf("  %-10s %s", res.Outcome, res.Resource)
		if res.Refreshed {
			line += " (refreshed)"
		}
		if res.Detail != "" {
			line += fmt.Sprintf(" - %s", res.Detail)
		}
		fmt.Println(line)
	}
	fmt.Printf("Summary: %d total, %d unchanged, %d changed, %d failed, %d skipped, %d refreshed\n",
		report.Summary.Total,
		report.Summary.Unchanged,
		report.Summary.Changed,
		report.Summary.Failed,
		report.Summary.Skipped,
		report.Summary.Refreshed,
	)
	return nil
}
