package compiler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openconverge/openconverge/pkg/engine"
)

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets the logger used during compilation.
func WithLogger(log zerolog.Logger) CompilerOption {
	return func(c *Compiler) { c.log = log }
}

// Compiler turns a parameter set and a fact set into a resource catalog.
// Compilation is pure with respect to host state: it reads only its inputs
// and never consults providers.
type Compiler struct {
	log zerolog.Logger
}

// NewCompiler creates a catalog compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds a fresh catalog for the given parameters and facts.
func (c *Compiler) Compile(params *ParameterSet, facts engine.FactSet) (*engine.Catalog, error) {
	return c.CompileInto(engine.NewCatalog(), params, facts)
}

// CompileInto compiles on top of an existing catalog, so collaborating
// modules can pre-declare shared resources. Identities already declared
// (user, group, configuration file and directory) are kept rather than
// re-emitted.
//
// The argument catalog is never mutated: compilation works on a copy and the
// combined catalog is returned. Malformed parameters and an unsupported run
// style are compile errors; in both cases no catalog is returned and the run
// must be reported as failed before any host mutation occurs.
func (c *Compiler) CompileInto(seed *engine.Catalog, params *ParameterSet, facts engine.FactSet) (*engine.Catalog, error) {
	if params == nil {
		return nil, engine.NewCompileError("parameter set is nil", nil).
			WithCode(engine.ErrCodeInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cat := engine.NewCatalog()
	if seed != nil {
		cat = seed.Clone()
	}

	// The selector runs first but an unsupported style does not stop the
	// remaining resources from compiling; the error surfaces once the pass
	// is complete.
	style, styleErr := selectRunStyle(params.RunStyle)
	if styleErr != nil {
		c.log.Error().Str("run_style", params.RunStyle).Msg("unsupported run style")
	}

	if err := c.addBaseResources(cat, params); err != nil {
		return nil, err
	}

	for _, res := range platformResources(params, facts, style) {
		if err := cat.Add(res); err != nil {
			return nil, err
		}
	}

	if styleErr == nil {
		if err := c.addAgentExecution(cat, params, facts, style); err != nil {
			return nil, err
		}
	}

	if err := c.addConfigSettings(cat, params); err != nil {
		return nil, err
	}

	if err := cat.ValidateReferences(); err != nil {
		return nil, err
	}

	if styleErr != nil {
		return nil, styleErr
	}

	c.log.Debug().Int("resources", cat.Len()).Msg("catalog compiled")
	return cat, nil
}

// addBaseResources declares the resources every run style needs: the agent
// group, user, package, configuration directory and configuration file. The
// user, group and file identities are guarded so a collaborating module's
// declaration wins without a uniqueness violation.
func (c *Compiler) addBaseResources(cat *engine.Catalog, params *ParameterSet) error {
	groupRef := engine.NewReference(engine.TypeGroup, params.Group)
	userRef := engine.NewReference(engine.TypeUser, params.User)
	packageRef := engine.NewReference(engine.TypePackage, params.PackageName)
	confDirRef := engine.NewReference(engine.TypeFile, params.ConfDir)

	group := &engine.Resource{
		Type:       engine.TypeGroup,
		Title:      params.Group,
		Ensure:     engine.EnsurePresent,
		Attributes: map[string]any{},
	}
	if params.GroupID != nil {
		group.Attributes["gid"] = *params.GroupID
	}
	if _, err := cat.AddUnlessDeclared(group); err != nil {
		return err
	}

	user := &engine.Resource{
		Type:   engine.TypeUser,
		Title:  params.User,
		Ensure: engine.EnsurePresent,
		Attributes: map[string]any{
			"group": params.Group,
		},
	}
	if params.UserID != nil {
		user.Attributes["uid"] = *params.UserID
	}
	user.Require(groupRef)
	if _, err := cat.AddUnlessDeclared(user); err != nil {
		return err
	}

	pkg := &engine.Resource{
		Type:   engine.TypePackage,
		Title:  params.PackageName,
		Ensure: params.PackageVersion,
	}
	if err := cat.Add(pkg); err != nil {
		return err
	}

	confDir := &engine.Resource{
		Type:   engine.TypeFile,
		Title:  params.ConfDir,
		Ensure: engine.EnsureDirectory,
		Attributes: map[string]any{
			"owner": params.User,
			"group": params.Group,
		},
	}
	confDir.Require(userRef, groupRef)
	if _, err := cat.AddUnlessDeclared(confDir); err != nil {
		return err
	}

	config := &engine.Resource{
		Type:   engine.TypeFile,
		Title:  params.ConfigFile,
		Ensure: engine.EnsurePresent,
		Attributes: map[string]any{
			"owner": params.User,
			"group": params.Group,
			"mode":  "0644",
		},
	}
	config.Require(confDirRef, packageRef)
	if _, err := cat.AddUnlessDeclared(config); err != nil {
		return err
	}

	return nil
}

// addAgentExecution declares the selected execution mechanism and, for the
// service style, wires the subscriptions: a changed agent package or
// configuration file notifies the service so it restarts on upgrade or
// reconfiguration.
func (c *Compiler) addAgentExecution(cat *engine.Catalog, params *ParameterSet, facts engine.FactSet, style runStyle) error {
	resources, err := agentExecutionResources(style, params, facts)
	if err != nil {
		return err
	}
	for _, res := range resources {
		if err := cat.Add(res); err != nil {
			return err
		}
	}

	if style == styleService {
		serviceRef := engine.NewReference(engine.TypeService, params.ServiceName)
		for _, ref := range []engine.Reference{
			engine.NewReference(engine.TypePackage, params.PackageName),
			engine.NewReference(engine.TypeFile, params.ConfigFile),
		} {
			notifier, ok := cat.Get(ref)
			if !ok {
				return engine.NewCompileError(
					fmt.Sprintf("subscription source %s is not declared", ref), nil).
					WithCode(engine.ErrCodeUnresolvedReference)
			}
			notifier.Notify(serviceRef)
		}
	}

	return nil
}

// addConfigSettings declares the fixed tail of agent configuration settings.
// Every setting requires the configuration file to exist first.
func (c *Compiler) addConfigSettings(cat *engine.Catalog, params *ParameterSet) error {
	configRef := engine.NewReference(engine.TypeFile, params.ConfigFile)

	settings := []struct {
		name  string
		value any
	}{
		{"server", params.Server},
		{"environment", params.Environment},
		{"runinterval", params.RunIntervalSeconds()},
		{"splay", params.Splay},
		{"masterport", params.MasterPort},
	}

	for _, s := range settings {
		res := &engine.Resource{
			Type:   engine.TypeSetting,
			Title:  fmt.Sprintf("agent/%s", s.name),
			Ensure: engine.EnsurePresent,
			Attributes: map[string]any{
				"path":    params.ConfigFile,
				"section": "agent",
				"setting": s.name,
				"value":   s.value,
			},
		}
		res.Require(configRef)
		if err := cat.Add(res); err != nil {
			return err
		}
	}

	return nil
}
