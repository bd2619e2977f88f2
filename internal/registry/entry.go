package registry

import (
	"encoding/json"
	"io"
	"text/template"
)

// Thunk is one lazily imported symbol of an entry module.
type Thunk struct {
	// Key is the symbol name consumers ask the registry for.
	Key string
	// ImportPath is passed to the dynamic import().
	ImportPath string
	// Symbol is "default" when the import resolves the whole module.
	Symbol        string
	SaveAsModules []string
}

// Entry is the generated entry module of one package.
type Entry struct {
	Module string
	Thunks []Thunk
}

var entryTemplate = template.Must(template.New("entry").Funcs(template.FuncMap{
	"quote": Quote,
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
}).Parse(`const moduleName = {{quote .Module}};

const interopDefault = (lib) => {
    if (lib && typeof lib === 'object' && 'default' in lib && Object.keys(lib).length === 1) {
        return lib.default;
    }
    return lib;
};

const store = globalThis.{{.Store}} || (globalThis.{{.Store}} = {});
if (!store.nodeModules) store.nodeModules = {};
if (!store.nodeModules.imports) store.nodeModules.imports = {};
if (!store.nodeModules.modules) store.nodeModules.modules = {};
if (!store.nodeModules.defaultClaimed) store.nodeModules.defaultClaimed = {};
if (!store.nodeModules.modules[moduleName]) store.nodeModules.modules[moduleName] = {};

const isClaimed = () => store.nodeModules.defaultClaimed[moduleName] === true;

const handleImport = (load, importName, saveAsModules) => {
    if (isClaimed()) return Promise.resolve();
    if (importName === 'default') store.nodeModules.defaultClaimed[moduleName] = true;
    return load().then((lib) => {
        const value = interopDefault(lib);
        if (importName === 'default') {
            store.nodeModules.modules[moduleName] = value;
        } else {
            if (isClaimed()) return;
            store.nodeModules.modules[moduleName][importName] = value;
        }
        if (Array.isArray(saveAsModules)) {
            saveAsModules.forEach((alias) => {
                store.nodeModules.modules[alias] = value;
            });
        }
    });
};

store.nodeModules.imports[moduleName] = {
{{- range .Thunks}}
    {{quote .Key}}: () => handleImport(() => import({{quote .ImportPath}}), {{quote .Symbol}}{{if .SaveAsModules}}, {{json .SaveAsModules}}{{end}}),
{{- end}}
};
`))

// RenderEntry writes the entry module source.
func RenderEntry(w io.Writer, entry Entry) error {
	return entryTemplate.Execute(w, struct {
		Entry
		Store string
	}{Entry: entry, Store: StoreName})
}
