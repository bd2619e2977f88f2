package artifact

import (
	"path/filepath"
	"sort"
	"strings"
)

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"` // "cjs" or "esm"
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// OutputFile is one emitted file of a build.
type OutputFile struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// files lists the outputs relative to dir, sorted, and their total size.
// Output paths in the metafile are relative to the working directory.
func (m *Metafile) files(workDir, dir string) ([]OutputFile, int) {
	files := make([]OutputFile, 0, len(m.Outputs))
	total := 0
	for path, out := range m.Outputs {
		abs := path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(workDir, filepath.FromSlash(path))
		}
		rel, err := filepath.Rel(dir, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = path
		}
		files = append(files, OutputFile{Path: filepath.ToSlash(rel), Bytes: out.Bytes})
		total += out.Bytes
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, total
}

// inlined returns the bare specifiers compiled into the output instead of
// being resolved through the registry, sorted.
func (m *Metafile) inlined(isPackagePath func(string) bool) []string {
	seen := make(map[string]struct{})
	for _, in := range m.Inputs {
		for _, imp := range in.Imports {
			if imp.External || imp.Original == "" || !isPackagePath(imp.Original) {
				continue
			}
			if strings.HasPrefix(imp.Path, registryNamespace+":") {
				continue
			}
			seen[imp.Original] = struct{}{}
		}
	}
	list := make([]string, 0, len(seen))
	for s := range seen {
		list = append(list, s)
	}
	sort.Strings(list)
	return list
}
