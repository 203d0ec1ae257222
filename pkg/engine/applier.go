package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MetricsRecorder receives applier observations. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	RecordResource(resourceType string, outcome Outcome, duration time.Duration)
	RecordProviderCall(resourceType, operation string)
	RecordRun(status RunStatus, duration time.Duration)
	RecordRefresh()
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithLogger sets the logger used during apply.
func WithLogger(log zerolog.Logger) ApplierOption {
	return func(a *Applier) { a.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) ApplierOption {
	return func(a *Applier) { a.metrics = m }
}

// WithMaxParallel bounds the number of resources applied concurrently within
// one batch. The default of 1 applies strictly sequentially; cross-batch
// ordering is respected either way.
func WithMaxParallel(n int) ApplierOption {
	return func(a *Applier) {
		if n > 0 {
			a.maxParallel = n
		}
	}
}

// Applier executes an ordered plan batch by batch, invoking resource
// providers and propagating refresh notifications and dependency failures.
type Applier struct {
	registry    Registry
	log         zerolog.Logger
	metrics     MetricsRecorder
	maxParallel int
}

// NewApplier creates an applier using the given provider registry.
func NewApplier(registry Registry, opts ...ApplierOption) *Applier {
	a := &Applier{
		registry:    registry,
		log:         zerolog.Nop(),
		maxParallel: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// runState tracks per-run outcomes and queued refresh events. Guarded by mu
// because resources within a batch may be applied concurrently.
type runState struct {
	mu sync.Mutex

	reports   map[Reference]*ResourceReport
	notifiers map[Reference][]Reference
	delivered map[Reference]bool
	refreshes []RefreshEvent
}

func newRunState() *runState {
	return &runState{
		reports:   make(map[Reference]*ResourceReport),
		notifiers: make(map[Reference][]Reference),
		delivered: make(map[Reference]bool),
	}
}

func (s *runState) record(rep *ResourceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[rep.Resource] = rep
}

func (s *runState) report(ref Reference) *ResourceReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[ref]
}

// queueRefresh unions a notification into the target's pending set. At most
// one refresh per target is delivered per run regardless of notifier count.
func (s *runState) queueRefresh(target, notifier Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers[target] = append(s.notifiers[target], notifier)
}

// Apply walks the plan and returns the run report. Cancellation is honored
// between batches; resources already applied are not rolled back.
func (a *Applier) Apply(ctx context.Context, plan *OrderedPlan) *RunReport {
	started := time.Now()
	runID := uuid.New().String()
	log := a.log.With().Str("run_id", runID).Logger()

	state := newRunState()
	cancelled := false

	for i, batch := range plan.Batches {
		if ctx.Err() != nil {
			log.Warn().Int("batch", i).Msg("run cancelled between batches")
			cancelled = true
			break
		}

		a.applyBatch(ctx, batch, plan, state, log)

		// Refresh events queued for resources in this or earlier batches are
		// delivered now, after the target's own apply step.
		a.flushRefreshes(ctx, plan, state, log)
	}

	report := a.buildReport(runID, started, plan, state, cancelled)

	if a.metrics != nil {
		a.metrics.RecordRun(report.Status, report.Duration())
	}
	log.Info().
		Str("status", string(report.Status)).
		Int("changed", report.Summary.Changed).
		Int("failed", report.Summary.Failed).
		Int("skipped", report.Summary.Skipped).
		Msg("convergence run completed")

	return report
}

// applyBatch applies all resources of one batch, sequentially or through a
// bounded worker pool. Resources within a batch have no requires relation
// among them.
func (a *Applier) applyBatch(ctx context.Context, batch []*Resource, plan *OrderedPlan, state *runState, log zerolog.Logger) {
	workers := a.maxParallel
	if workers > len(batch) {
		workers = len(batch)
	}

	if workers <= 1 {
		for _, res := range batch {
			a.applyResource(ctx, res, plan, state, log)
		}
		return
	}

	queue := make(chan *Resource, len(batch))
	for _, res := range batch {
		queue <- res
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for res := range queue {
				a.applyResource(ctx, res, plan, state, log)
			}
		}()
	}
	wg.Wait()
}

// applyResource reads, compares and applies a single resource, then queues
// refresh notifications if it changed.
func (a *Applier) applyResource(ctx context.Context, res *Resource, plan *OrderedPlan, state *runState, log zerolog.Logger) {
	ref := res.Ref()
	startedAt := time.Now()

	rep := &ResourceReport{Resource: ref}
	defer func() {
		rep.Duration = time.Since(startedAt)
		state.record(rep)
		if a.metrics != nil {
			a.metrics.RecordResource(res.Type, rep.Outcome, rep.Duration)
		}
	}()

	// Failure propagation: a failed or skipped predecessor skips this
	// resource, which in turn skips its own dependents.
	for _, req := range res.Requires {
		if prior := state.report(req); prior != nil && prior.Outcome.IsFailure() {
			rep.Outcome = OutcomeSkipped
			rep.Detail = fmt.Sprintf("dependency %s %s", req, prior.Outcome)
			log.Debug().Str("resource", ref.String()).Str("dependency", req.String()).
				Msg("skipped due to dependency failure")
			return
		}
	}

	provider, err := a.registry.Provider(res.Type)
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Detail = err.Error()
		log.Error().Str("resource", ref.String()).Err(err).Msg("provider unavailable")
		return
	}

	a.recordProviderCall(res.Type, "read")
	current, err := provider.Read(ctx, res)
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Detail = NewApplyError("state read failed", err).
			WithCode(ErrCodeProviderFailed).WithResource(ref.String()).WithOperation("read").Error()
		log.Error().Str("resource", ref.String()).Err(err).Msg("state read failed")
		return
	}

	if Satisfied(res, current) {
		rep.Outcome = OutcomeUnchanged
		log.Debug().Str("resource", ref.String()).Msg("already in desired state")
		return
	}

	a.recordProviderCall(res.Type, "apply")
	if err := provider.Apply(ctx, res); err != nil {
		rep.Outcome = OutcomeFailed
		rep.Detail = NewApplyError("apply failed", err).
			WithCode(ErrCodeProviderFailed).WithResource(ref.String()).WithOperation("apply").Error()
		log.Error().Str("resource", ref.String()).Err(err).Msg("apply failed")
		return
	}

	rep.Outcome = OutcomeChanged
	log.Info().Str("resource", ref.String()).Str("ensure", res.Ensure).Msg("resource changed")

	for _, target := range plan.NotifyTargets[ref] {
		state.queueRefresh(target, ref)
	}
}

// flushRefreshes delivers queued refresh events to every target whose own
// apply step has completed successfully. Delivery is at most once per target
// per run; notifications from multiple changed resources are folded into a
// single refresh.
func (a *Applier) flushRefreshes(ctx context.Context, plan *OrderedPlan, state *runState, log zerolog.Logger) {
	state.mu.Lock()
	pending := make(map[Reference][]Reference, len(state.notifiers))
	for target, notifiers := range state.notifiers {
		if state.delivered[target] {
			continue
		}
		rep := state.reports[target]
		if rep == nil || rep.Outcome.IsFailure() {
			// Not yet applied, or in no state to refresh. Failed and skipped
			// targets never receive the refresh; unapplied ones stay queued.
			continue
		}
		pending[target] = notifiers
		state.delivered[target] = true
		delete(state.notifiers, target)
	}
	state.mu.Unlock()

	for target, notifiers := range pending {
		res, ok := planResource(plan, target)
		if !ok {
			continue
		}

		event := RefreshEvent{Target: target, Notifiers: notifiers}
		rep := state.report(target)

		if provider, err := a.registry.Provider(target.Type); err == nil {
			if refresher, ok := provider.(Refresher); ok {
				a.recordProviderCall(target.Type, "refresh")
				if err := refresher.Refresh(ctx, res); err != nil {
					state.mu.Lock()
					rep.Outcome = OutcomeFailed
					rep.Detail = NewApplyError("refresh failed", err).
						WithCode(ErrCodeProviderFailed).WithResource(target.String()).WithOperation("refresh").Error()
					state.mu.Unlock()
					log.Error().Str("resource", target.String()).Err(err).Msg("refresh failed")
					continue
				}
			}
		}

		state.mu.Lock()
		rep.Refreshed = true
		state.refreshes = append(state.refreshes, event)
		state.mu.Unlock()

		if a.metrics != nil {
			a.metrics.RecordRefresh()
		}
		log.Info().Str("resource", target.String()).Int("notifiers", len(notifiers)).
			Msg("refresh delivered")
	}
}

func (a *Applier) recordProviderCall(resourceType, operation string) {
	if a.metrics != nil {
		a.metrics.RecordProviderCall(resourceType, operation)
	}
}

// buildReport assembles the final report in apply order. Resources never
// reached because the run was cancelled are reported as skipped.
func (a *Applier) buildReport(runID string, started time.Time, plan *OrderedPlan, state *runState, cancelled bool) *RunReport {
	report := &RunReport{
		ID:        runID,
		StartedAt: started,
		Resources: make([]ResourceReport, 0, plan.Len()),
		Refreshes: state.refreshes,
	}

	for _, res := range plan.Resources() {
		rep := state.report(res.Ref())
		if rep == nil {
			rep = &ResourceReport{
				Resource: res.Ref(),
				Outcome:  OutcomeSkipped,
				Detail:   "run cancelled before apply",
			}
		}
		report.Resources = append(report.Resources, *rep)

		report.Summary.Total++
		switch rep.Outcome {
		case OutcomeUnchanged:
			report.Summary.Unchanged++
		case OutcomeChanged:
			report.Summary.Changed++
		case OutcomeFailed:
			report.Summary.Failed++
		case OutcomeSkipped:
			report.Summary.Skipped++
		}
	}
	report.Summary.Refreshed = len(state.refreshes)

	report.CompletedAt = time.Now()
	if report.Summary.Failed > 0 || report.Summary.Skipped > 0 || cancelled {
		report.Status = RunStatusPartialFailure
	} else {
		report.Status = RunStatusSuccess
	}

	return report
}

// planResource looks up a planned resource by reference.
func planResource(plan *OrderedPlan, ref Reference) (*Resource, bool) {
	for _, batch := range plan.Batches {
		for _, res := range batch {
			if res.Ref() == ref {
				return res, true
			}
		}
	}
	return nil, false
}
