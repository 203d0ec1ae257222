package compiler

import (
	"fmt"

	"github.com/openconverge/openconverge/pkg/engine"
)

// runStyle is the state of the run-style selector. The selector transitions
// exactly once per compile, from the run_style parameter to one of three
// states; there is no mid-run switching and no default fallback.
type runStyle int

const (
	styleUnknown runStyle = iota
	styleService
	styleCron
	styleUnsupported
)

// selectRunStyle resolves the run_style parameter. An unrecognized value
// transitions to the error state: the compile error names the invalid style
// and the run must be reported as failed rather than silently falling back
// to a default mechanism.
func selectRunStyle(value string) (runStyle, error) {
	switch value {
	case RunStyleService:
		return styleService, nil
	case RunStyleCron:
		return styleCron, nil
	default:
		return styleUnsupported, engine.NewCompileError(
			fmt.Sprintf("unsupported run style %q", value), nil).
			WithCode(engine.ErrCodeUnsupportedRunStyle)
	}
}

// bootAutostart reports whether the style keeps the agent enabled at boot,
// the precondition for the OS default-file tuning branch.
func (s runStyle) bootAutostart() bool {
	return s == styleService
}

// agentExecutionResources builds the resources realizing the selected
// execution mechanism. The two mechanisms are mutually exclusive: the
// service style runs the long-lived agent, the cron style explicitly stops
// and disables it and schedules one-shot runs instead.
func agentExecutionResources(style runStyle, params *ParameterSet, facts engine.FactSet) ([]*engine.Resource, error) {
	packageRef := engine.NewReference(engine.TypePackage, params.PackageName)
	configRef := engine.NewReference(engine.TypeFile, params.ConfigFile)

	switch style {
	case styleService:
		service := &engine.Resource{
			Type:   engine.TypeService,
			Title:  params.ServiceName,
			Ensure: engine.EnsureRunning,
			Attributes: map[string]any{
				"enable": true,
			},
		}
		service.Require(configRef)
		return []*engine.Resource{service}, nil

	case styleCron:
		service := &engine.Resource{
			Type:   engine.TypeService,
			Title:  params.ServiceName,
			Ensure: engine.EnsureStopped,
			Attributes: map[string]any{
				"enable": false,
			},
		}
		service.Require(packageRef)

		first, second, err := NewJitter(facts.FQDN()).Offsets(params.RunIntervalMinutes)
		if err != nil {
			return nil, err
		}

		cron := &engine.Resource{
			Type:   engine.TypeCron,
			Title:  "agent-run",
			Ensure: engine.EnsurePresent,
			Attributes: map[string]any{
				"command": params.AgentCommand,
				"user":    params.User,
				"minute":  []int{first, second},
				"hour":    "*",
			},
		}
		cron.Require(configRef)

		return []*engine.Resource{service, cron}, nil

	default:
		return nil, engine.NewCompileError("run style not selected", nil).
			WithCode(engine.ErrCodeInternal)
	}
}
