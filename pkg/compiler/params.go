package compiler

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openconverge/openconverge/pkg/engine"
)

// Run styles accepted by the run-style selector. Any other value is an
// unsupported style and fails compilation.
const (
	RunStyleService = "service"
	RunStyleCron    = "cron"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParameterSet is the fully-resolved configuration for one convergence run.
// Defaults and hierarchical lookups are resolved by the caller before the
// engine runs; the set is immutable for the duration of the run.
type ParameterSet struct {
	// Server is the upstream server the agent reports to.
	Server string `yaml:"server" validate:"required"`

	// MasterPort is the upstream server port.
	MasterPort int `yaml:"master_port" validate:"required,min=1,max=65535"`

	// PackageName is the agent package identity.
	PackageName string `yaml:"package_name" validate:"required"`

	// PackageVersion is the desired package state (a version string,
	// "present" or "absent").
	PackageVersion string `yaml:"package_version" validate:"required"`

	// ServiceName is the agent service identity.
	ServiceName string `yaml:"service_name" validate:"required"`

	// AgentCommand is the one-shot agent invocation used for cron-managed
	// execution.
	AgentCommand string `yaml:"agent_command" validate:"required"`

	// RunStyle selects the agent execution mechanism: "service" or "cron".
	RunStyle string `yaml:"run_style" validate:"required"`

	// RunIntervalMinutes is the agent run interval in minutes.
	RunIntervalMinutes int `yaml:"run_interval" validate:"required,min=1"`

	// Splay enables randomized sleep before each agent run.
	Splay bool `yaml:"splay"`

	// Environment is the agent environment name.
	Environment string `yaml:"environment" validate:"required"`

	// ConfDir is the agent configuration directory.
	ConfDir string `yaml:"conf_dir" validate:"required"`

	// ConfigFile is the agent configuration file path.
	ConfigFile string `yaml:"config_file" validate:"required"`

	// User and Group own the agent's files and processes.
	User  string `yaml:"user" validate:"required"`
	Group string `yaml:"group" validate:"required"`

	// UserID and GroupID optionally pin numeric ids for the user and group.
	UserID  *int `yaml:"uid,omitempty" validate:"omitempty,min=0"`
	GroupID *int `yaml:"gid,omitempty" validate:"omitempty,min=0"`
}

// Validate checks the parameter set. Malformed parameters fail compilation
// immediately; no partial catalog is produced.
func (p *ParameterSet) Validate() error {
	if err := validate.Struct(p); err != nil {
		return engine.NewCompileError("invalid parameters", err).
			WithCode(engine.ErrCodeInvalidParameters)
	}
	return nil
}

// RunIntervalSeconds returns the run interval converted to seconds, the unit
// the agent configuration expects.
func (p *ParameterSet) RunIntervalSeconds() int {
	return p.RunIntervalMinutes * 60
}

// LoadParameters reads a parameter set from a YAML file.
func LoadParameters(path string) (*ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}

	params := &ParameterSet{}
	if err := yaml.Unmarshal(data, params); err != nil {
		return nil, engine.NewCompileError("failed to parse parameter file", err).
			WithCode(engine.ErrCodeInvalidParameters)
	}
	return params, nil
}

// LoadFacts reads a fact set from a YAML file of string key/value pairs.
func LoadFacts(path string) (engine.FactSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.FactSet{}, fmt.Errorf("failed to read fact file: %w", err)
	}

	facts := make(map[string]string)
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return engine.FactSet{}, fmt.Errorf("failed to parse fact file: %w", err)
	}
	return engine.NewFactSet(facts), nil
}
