package compiler

import (
	"errors"
	"testing"

	"github.com/openconverge/openconverge/pkg/engine"
)

func testParams() *ParameterSet {
	return &ParameterSet{
		Server:             "master.example.com",
		MasterPort:         8140,
		PackageName:        "converge-agent",
		PackageVersion:     "2.7.1",
		ServiceName:        "converge-agent",
		AgentCommand:       "/usr/bin/converge-agent --onetime",
		RunStyle:           RunStyleService,
		RunIntervalMinutes: 30,
		Splay:              false,
		Environment:        "production",
		ConfDir:            "/etc/converge",
		ConfigFile:         "/etc/converge/agent.conf",
		User:               "converge",
		Group:              "converge",
	}
}

func linuxFacts(osFamily, fqdn string) engine.FactSet {
	return engine.NewFactSet(map[string]string{
		engine.FactKernel:   engine.KernelLinux,
		engine.FactOSFamily: osFamily,
		engine.FactFQDN:     fqdn,
	})
}

func mustCompile(t *testing.T, params *ParameterSet, facts engine.FactSet) *engine.Catalog {
	t.Helper()
	cat, err := NewCompiler().Compile(params, facts)
	if err != nil {
		t.Fatalf("Expected no compile error, got: %v", err)
	}
	return cat
}

func mustGet(t *testing.T, cat *engine.Catalog, ref engine.Reference) *engine.Resource {
	t.Helper()
	res, ok := cat.Get(ref)
	if !ok {
		t.Fatalf("Expected %s in catalog", ref)
	}
	return res
}

func TestCompiler_Compile_ServiceStyle(t *testing.T) {
	params := testParams()
	cat := mustCompile(t, params, linuxFacts(engine.OSFamilyRedHat, "agent1.example.com"))

	svc := mustGet(t, cat, engine.NewReference(engine.TypeService, "converge-agent"))
	if svc.Ensure != engine.EnsureRunning {
		t.Errorf("Expected service running, got %s", svc.Ensure)
	}
	if enable, _ := svc.Attribute("enable"); enable != true {
		t.Errorf("Expected service enabled, got %v", enable)
	}

	if cat.Declared(engine.NewReference(engine.TypeCron, "agent-run")) {
		t.Error("Expected no cron resource in service style")
	}

	// Package and config file notify the service so it restarts on upgrade
	// and reconfiguration.
	pkg := mustGet(t, cat, engine.NewReference(engine.TypePackage, "converge-agent"))
	config := mustGet(t, cat, engine.NewReference(engine.TypeFile, "/etc/converge/agent.conf"))
	for _, notifier := range []*engine.Resource{pkg, config} {
		found := false
		for _, ref := range notifier.Notifies {
			if ref == svc.Ref() {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected %s to notify the service", notifier.Ref())
		}
	}

	if pkg.Ensure != "2.7.1" {
		t.Errorf("Expected package pinned to version, got %s", pkg.Ensure)
	}
}

func TestCompiler_Compile_CronStyle(t *testing.T) {
	params := testParams()
	params.RunStyle = RunStyleCron
	cat := mustCompile(t, params, linuxFacts(engine.OSFamilyRedHat, "agent1.example.com"))

	// The two mechanisms are mutually exclusive: cron style stops and
	// disables the service.
	svc := mustGet(t, cat, engine.NewReference(engine.TypeService, "converge-agent"))
	if svc.Ensure != engine.EnsureStopped {
		t.Errorf("Expected service stopped, got %s", svc.Ensure)
	}
	if enable, _ := svc.Attribute("enable"); enable != false {
		t.Errorf("Expected service disabled, got %v", enable)
	}
	if len(svc.Notifies) != 0 {
		t.Error("Expected no subscriptions in cron style")
	}

	cron := mustGet(t, cat, engine.NewReference(engine.TypeCron, "agent-run"))
	if cron.Ensure != engine.EnsurePresent {
		t.Errorf("Expected cron present, got %s", cron.Ensure)
	}
	if cmd, _ := cron.Attribute("command"); cmd != params.AgentCommand {
		t.Errorf("Expected agent command, got %v", cmd)
	}
	if hour, _ := cron.Attribute("hour"); hour != "*" {
		t.Errorf("Expected every hour, got %v", hour)
	}

	minutes, _ := cron.Attribute("minute")
	pair, ok := minutes.([]int)
	if !ok || len(pair) != 2 {
		t.Fatalf("Expected two minute offsets, got %v", minutes)
	}
	if pair[0] < 0 || pair[0] >= 30 {
		t.Errorf("Expected first offset in [0, 30), got %d", pair[0])
	}
	if pair[1] < 30 || pair[1] >= 60 {
		t.Errorf("Expected second offset in [30, 60), got %d", pair[1])
	}

	// Same host, same schedule on recompilation.
	again := mustCompile(t, params, linuxFacts(engine.OSFamilyRedHat, "agent1.example.com"))
	cron2 := mustGet(t, again, engine.NewReference(engine.TypeCron, "agent-run"))
	minutes2, _ := cron2.Attribute("minute")
	pair2 := minutes2.([]int)
	if pair2[0] != pair[0] || pair2[1] != pair[1] {
		t.Errorf("Expected stable schedule, got %v then %v", pair, pair2)
	}
}

func TestCompiler_Compile_ConfigSettings(t *testing.T) {
	params := testParams()
	cat := mustCompile(t, params, linuxFacts(engine.OSFamilyDebian, "agent1.example.com"))

	configRef := engine.NewReference(engine.TypeFile, params.ConfigFile)
	expected := map[string]any{
		"server":      "master.example.com",
		"environment": "production",
		"runinterval": 1800, // minutes converted to seconds
		"splay":       false,
		"masterport":  8140,
	}

	for name, want := range expected {
		setting := mustGet(t, cat, engine.NewReference(engine.TypeSetting, "agent/"+name))
		if got, _ := setting.Attribute("value"); got != want {
			t.Errorf("Setting %s: expected value %v, got %v", name, want, got)
		}
		if section, _ := setting.Attribute("section"); section != "agent" {
			t.Errorf("Setting %s: expected agent section, got %v", name, section)
		}
		requiresConfig := false
		for _, ref := range setting.Requires {
			if ref == configRef {
				requiresConfig = true
			}
		}
		if !requiresConfig {
			t.Errorf("Setting %s: expected requires edge to the config file", name)
		}
	}
}

func TestCompiler_Compile_PlatformBranches(t *testing.T) {
	redhatServer := engine.NewReference(engine.TypeDefaults, "/etc/sysconfig/converge-agent:server")
	redhatPort := engine.NewReference(engine.TypeDefaults, "/etc/sysconfig/converge-agent:port")
	debianStart := engine.NewReference(engine.TypeDefaults, "/etc/default/converge-agent:START")

	tests := []struct {
		name     string
		kernel   string
		osFamily string
		runStyle string
		want     []engine.Reference
	}{
		{"redhat service", engine.KernelLinux, engine.OSFamilyRedHat, RunStyleService,
			[]engine.Reference{redhatServer, redhatPort}},
		{"debian service", engine.KernelLinux, engine.OSFamilyDebian, RunStyleService,
			[]engine.Reference{debianStart}},
		{"other family", engine.KernelLinux, "Suse", RunStyleService, nil},
		{"non-linux", "Darwin", engine.OSFamilyRedHat, RunStyleService, nil},
		{"cron disables autostart tuning", engine.KernelLinux, engine.OSFamilyRedHat, RunStyleCron, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			params.RunStyle = tt.runStyle
			facts := engine.NewFactSet(map[string]string{
				engine.FactKernel:   tt.kernel,
				engine.FactOSFamily: tt.osFamily,
				engine.FactFQDN:     "agent1.example.com",
			})
			cat := mustCompile(t, params, facts)

			for _, ref := range tt.want {
				res := mustGet(t, cat, ref)
				if res.Ensure != engine.EnsurePresent {
					t.Errorf("Expected %s present, got %s", ref, res.Ensure)
				}
			}
			for _, ref := range []engine.Reference{redhatServer, redhatPort, debianStart} {
				wanted := false
				for _, w := range tt.want {
					if w == ref {
						wanted = true
					}
				}
				if !wanted && cat.Declared(ref) {
					t.Errorf("Unexpected platform resource %s", ref)
				}
			}
		})
	}
}

func TestCompiler_Compile_RedHatDefaultsContent(t *testing.T) {
	params := testParams()
	cat := mustCompile(t, params, linuxFacts(engine.OSFamilyRedHat, "agent1.example.com"))

	server := mustGet(t, cat, engine.NewReference(engine.TypeDefaults, "/etc/sysconfig/converge-agent:server"))
	if v, _ := server.Attribute("value"); v != "master.example.com" {
		t.Errorf("Expected server value, got %v", v)
	}
	port := mustGet(t, cat, engine.NewReference(engine.TypeDefaults, "/etc/sysconfig/converge-agent:port"))
	if v, _ := port.Attribute("value"); v != "8140" {
		t.Errorf("Expected port value as string, got %v", v)
	}

	pkgRef := engine.NewReference(engine.TypePackage, params.PackageName)
	for _, res := range []*engine.Resource{server, port} {
		found := false
		for _, ref := range res.Requires {
			if ref == pkgRef {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected %s to require the package", res.Ref())
		}
	}
}

func TestCompiler_CompileInto_GuardedIdentities(t *testing.T) {
	// A collaborating module declared the agent user first; compilation must
	// keep that declaration instead of raising a duplicate.
	params := testParams()
	cat := engine.NewCatalog()
	preSeeded := &engine.Resource{
		Type:       engine.TypeUser,
		Title:      params.User,
		Ensure:     engine.EnsurePresent,
		Attributes: map[string]any{"uid": 1234},
	}
	if err := cat.Add(preSeeded); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	result, err := NewCompiler().CompileInto(cat, params, linuxFacts(engine.OSFamilyDebian, "agent1.example.com"))
	if err != nil {
		t.Fatalf("Expected no compile error, got: %v", err)
	}

	user := mustGet(t, result, engine.NewReference(engine.TypeUser, params.User))
	if uid, _ := user.Attribute("uid"); uid != 1234 {
		t.Errorf("Expected pre-seeded declaration to win, got uid=%v", uid)
	}

	// A non-guarded identity declared twice still fails.
	cat2 := engine.NewCatalog()
	dup := &engine.Resource{Type: engine.TypePackage, Title: params.PackageName, Ensure: engine.EnsurePresent}
	if err := cat2.Add(dup); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_, err = NewCompiler().CompileInto(cat2, params, linuxFacts(engine.OSFamilyDebian, "agent1.example.com"))
	if err == nil {
		t.Fatal("Expected duplicate package declaration error, got nil")
	}
	var engineErr *engine.EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != engine.ErrCodeDuplicateResource {
		t.Errorf("Expected duplicate resource code, got: %v", err)
	}
}

func TestCompiler_CompileInto_LeavesSeedCatalogUntouched(t *testing.T) {
	// Compilation works on a copy: the collaborating module's catalog is the
	// same after a compile, successful or not.
	params := testParams()
	seed := engine.NewCatalog()
	config := &engine.Resource{
		Type:       engine.TypeFile,
		Title:      params.ConfigFile,
		Ensure:     engine.EnsurePresent,
		Attributes: map[string]any{"owner": "root"},
	}
	if err := seed.Add(config); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	result, err := NewCompiler().CompileInto(seed, params, linuxFacts(engine.OSFamilyDebian, "agent1.example.com"))
	if err != nil {
		t.Fatalf("Expected no compile error, got: %v", err)
	}

	// The service style wires config-file notifications on the result only.
	compiled := mustGet(t, result, config.Ref())
	if len(compiled.Notifies) == 0 {
		t.Error("Expected compiled config file to notify the service")
	}
	if len(config.Notifies) != 0 {
		t.Errorf("Expected seeded resource edges untouched, got %v", config.Notifies)
	}
	if seed.Len() != 1 {
		t.Errorf("Expected seed catalog to keep 1 resource, got %d", seed.Len())
	}

	// A failed compile leaves the seed equally untouched.
	params.RunStyle = "systemd-timer"
	result, err = NewCompiler().CompileInto(seed, params, linuxFacts(engine.OSFamilyDebian, "agent1.example.com"))
	if err == nil {
		t.Fatal("Expected unsupported run style error, got nil")
	}
	if result != nil {
		t.Error("Expected no catalog on unsupported run style")
	}
	if seed.Len() != 1 {
		t.Errorf("Expected seed catalog to keep 1 resource after failure, got %d", seed.Len())
	}
}

func TestCompiler_Compile_UnsupportedRunStyle(t *testing.T) {
	params := testParams()
	params.RunStyle = "systemd-timer"

	cat, err := NewCompiler().Compile(params, linuxFacts(engine.OSFamilyRedHat, "agent1.example.com"))
	if err == nil {
		t.Fatal("Expected unsupported run style error, got nil")
	}
	if cat != nil {
		t.Error("Expected no catalog on unsupported run style")
	}

	var engineErr *engine.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("Expected *EngineError, got: %T", err)
	}
	if engineErr.Code != engine.ErrCodeUnsupportedRunStyle {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeUnsupportedRunStyle, engineErr.Code)
	}
	if !engine.IsCompileError(err) {
		t.Error("Expected compile-class error")
	}
}

func TestCompiler_Compile_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ParameterSet)
	}{
		{"missing server", func(p *ParameterSet) { p.Server = "" }},
		{"port out of range", func(p *ParameterSet) { p.MasterPort = 70000 }},
		{"zero interval", func(p *ParameterSet) { p.RunIntervalMinutes = 0 }},
		{"missing user", func(p *ParameterSet) { p.User = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(params)
			_, err := NewCompiler().Compile(params, linuxFacts(engine.OSFamilyRedHat, "a.example"))
			if err == nil {
				t.Fatal("Expected parameter validation error, got nil")
			}
			var engineErr *engine.EngineError
			if !errors.As(err, &engineErr) || engineErr.Code != engine.ErrCodeInvalidParameters {
				t.Errorf("Expected invalid parameters code, got: %v", err)
			}
		})
	}

	if _, err := NewCompiler().Compile(nil, engine.FactSet{}); err == nil {
		t.Error("Expected error for nil parameter set, got nil")
	}
}

func TestCompiler_Compile_CatalogResolves(t *testing.T) {
	// Every compiled catalog must resolve: all edges declared, no cycles.
	for _, style := range []string{RunStyleService, RunStyleCron} {
		for _, family := range []string{engine.OSFamilyRedHat, engine.OSFamilyDebian, "Arch"} {
			params := testParams()
			params.RunStyle = style
			cat := mustCompile(t, params, linuxFacts(family, "agent1.example.com"))

			plan, err := engine.NewResolver().Resolve(cat)
			if err != nil {
				t.Fatalf("style=%s family=%s: expected resolvable catalog, got: %v", style, family, err)
			}
			if plan.Len() != cat.Len() {
				t.Errorf("style=%s family=%s: expected %d planned resources, got %d",
					style, family, cat.Len(), plan.Len())
			}

			// The package precedes the config file, which precedes every
			// setting.
			pkgPos, _ := plan.Position(engine.NewReference(engine.TypePackage, params.PackageName))
			confPos, _ := plan.Position(engine.NewReference(engine.TypeFile, params.ConfigFile))
			if pkgPos >= confPos {
				t.Errorf("style=%s family=%s: expected package before config file", style, family)
			}
		}
	}
}
