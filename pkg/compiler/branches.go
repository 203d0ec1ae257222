package compiler

import (
	"fmt"

	"github.com/openconverge/openconverge/pkg/engine"
)

// platformResources is the fact-driven branch of the catalog: OS default-file
// tuning emitted only on Linux hosts whose run style keeps the agent enabled
// at boot. Each branch is a pure facts × parameters -> resources function and
// the results compose by concatenation; families with no match emit nothing.
func platformResources(params *ParameterSet, facts engine.FactSet, style runStyle) []*engine.Resource {
	if facts.Kernel() != engine.KernelLinux || !style.bootAutostart() {
		return nil
	}

	switch facts.OSFamily() {
	case engine.OSFamilyRedHat:
		return redhatDefaults(params)
	case engine.OSFamilyDebian:
		return debianDefaults(params)
	default:
		return nil
	}
}

// redhatDefaults tunes the sysconfig defaults file: server address and master
// port, both pointing at the same path.
func redhatDefaults(params *ParameterSet) []*engine.Resource {
	path := fmt.Sprintf("/etc/sysconfig/%s", params.ServiceName)
	packageRef := engine.NewReference(engine.TypePackage, params.PackageName)

	server := defaultsEntry(path, "server", params.Server)
	server.Require(packageRef)

	port := defaultsEntry(path, "port", fmt.Sprintf("%d", params.MasterPort))
	port.Require(packageRef)

	return []*engine.Resource{server, port}
}

// debianDefaults enables agent autostart in the Debian defaults file.
func debianDefaults(params *ParameterSet) []*engine.Resource {
	path := fmt.Sprintf("/etc/default/%s", params.ServiceName)
	packageRef := engine.NewReference(engine.TypePackage, params.PackageName)

	start := defaultsEntry(path, "START", "yes")
	start.Require(packageRef)

	return []*engine.Resource{start}
}

// defaultsEntry declares one key in an OS defaults file. The title embeds the
// path so multiple entries against the same file keep distinct identities.
func defaultsEntry(path, key, value string) *engine.Resource {
	return &engine.Resource{
		Type:   engine.TypeDefaults,
		Title:  fmt.Sprintf("%s:%s", path, key),
		Ensure: engine.EnsurePresent,
		Attributes: map[string]any{
			"path":  path,
			"key":   key,
			"value": value,
		},
	}
}
