// Package registry describes the runtime module registry shared by every
// built package: where modules live at execution time, the descriptor each
// build leaves behind, and the order a loader must resolve them in.
package registry

import (
	"encoding/json"
	"strings"
)

const (
	// StoreName is the global object holding the registry.
	StoreName = "SharedModulesStore"
	// ModulesPath holds resolved module values keyed by package name.
	ModulesPath = StoreName + ".nodeModules.modules"
	// ImportsPath holds per-package symbol thunks.
	ImportsPath = StoreName + ".nodeModules.imports"
	// ClaimedPath holds the per-package "default claimed" flags.
	ClaimedPath = StoreName + ".nodeModules.defaultClaimed"

	// PublicPrefix is the URL prefix built packages are served under.
	PublicPrefix = "built_modules"
)

// ModuleExpr returns the registry lookup for a package, relative to the global scope.
func ModuleExpr(name string) string {
	return ModulesPath + "[" + Quote(name) + "]"
}

// GlobalModuleExpr returns the registry lookup for a package through globalThis.
func GlobalModuleExpr(name string) string {
	return "globalThis." + ModuleExpr(name)
}

// PublicPath returns the URL path a package's chunks are loaded from.
func PublicPath(name string) string {
	return "/" + PublicPrefix + "/" + name + "/"
}

// Quote renders s as a JavaScript string literal.
func Quote(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(b.String(), "\n")
}
