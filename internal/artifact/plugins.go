package artifact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dghubble/trie"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/fluxbase-eu/sharedmods/internal/registry"
)

const (
	registryNamespace = "sharedmods-registry"
	ignoreNamespace   = "sharedmods-ignore"
)

// registryPlugin resolves every shared external to a virtual module reading
// the package from the runtime registry.
func registryPlugin(externals []string) api.Plugin {
	return api.Plugin{
		Name: "sharedmods-registry",
		Setup: func(build api.PluginBuild) {
			if len(externals) == 0 {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: exactFilter(externals)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      args.Path,
						Namespace: registryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: registryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := registryModule(args.Path)
					return api.OnLoadResult{
						Contents: &contents,
						Loader:   api.LoaderJS,
					}, nil
				})
		},
	}
}

func registryModule(name string) string {
	return "module.exports = " + registry.GlobalModuleExpr(name) + ";\n"
}

func exactFilter(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	quoted := make([]string, 0, len(sorted))
	for _, name := range sorted {
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	return `^(?:` + strings.Join(quoted, "|") + `)$`
}

// IgnoreMatcher matches import specifiers against ignore rules. A rule
// matches the specifier itself and everything below it: "moment/locale"
// also ignores "moment/locale/fr".
type IgnoreMatcher struct {
	rules *trie.PathTrie
	empty bool
}

// NewIgnoreMatcher builds a matcher for rules.
func NewIgnoreMatcher(rules []string) *IgnoreMatcher {
	m := &IgnoreMatcher{rules: trie.NewPathTrie(), empty: true}
	for _, rule := range rules {
		rule = strings.TrimSuffix(rule, "/")
		if rule == "" {
			continue
		}
		m.rules.Put(rule, rule)
		m.empty = false
	}
	return m
}

// Match reports the rule matching specifier, if any.
func (m *IgnoreMatcher) Match(specifier string) (string, bool) {
	if m.empty {
		return "", false
	}
	var matched string
	_ = m.rules.WalkPath(specifier, func(key string, value interface{}) error {
		if matched == "" {
			matched = value.(string)
		}
		return nil
	})
	return matched, matched != ""
}

// ignorePlugin replaces ignored specifiers with an empty module.
func ignorePlugin(matcher *IgnoreMatcher) api.Plugin {
	return api.Plugin{
		Name: "sharedmods-ignore",
		Setup: func(build api.PluginBuild) {
			if matcher.empty {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if _, ok := matcher.Match(args.Path); !ok {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{
						Path:      args.Path,
						Namespace: ignoreNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: ignoreNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := ""
					return api.OnLoadResult{
						Contents: &contents,
						Loader:   api.LoaderJS,
					}, nil
				})
		},
	}
}
