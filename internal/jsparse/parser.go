// Package jsparse extracts import and export information from JavaScript and
// TypeScript sources using tree-sitter.
package jsparse

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var (
	typeScriptLanguage = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	tsxLanguage        = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
)

// Style describes how a binding is taken from its source module.
type Style string

const (
	// StyleNamed is `import { X } from "m"` or `export { X } from "m"`.
	StyleNamed Style = "named"
	// StyleDefault is `import X from "m"`.
	StyleDefault Style = "default"
	// StyleNamespace is `import * as X from "m"` or `export * from "m"`.
	StyleNamespace Style = "namespace"
	// StyleSideEffect is `import "m"`.
	StyleSideEffect Style = "side-effect"
	// StyleDynamic is `import("m")` or `require("m")`.
	StyleDynamic Style = "dynamic"
)

// Import is one imported binding. A statement importing several names
// produces one Import per name.
type Import struct {
	Source string
	// Name is the exported name requested from Source. Empty for styles that
	// take the whole module.
	Name  string
	Local string
	Style Style
}

// Symbol returns the exported symbol this import requests, "default" when the
// import takes the module as a whole.
func (i Import) Symbol() string {
	switch i.Style {
	case StyleNamed:
		if i.Name != "" {
			return i.Name
		}
		return i.Local
	default:
		return "default"
	}
}

// Export is one exported name of a module, or a star re-export.
type Export struct {
	Name string
	// From is set for `export * from "x"` re-exports; Name is empty then.
	From string
}

// File is the parse result of a single source file.
type File struct {
	Path      string
	Imports   []Import
	Exports   []Export
	HasErrors bool
}

// Parse parses a source file. The path is only used to pick a grammar.
func Parse(path string, content []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(languageFor(path)); err != nil {
		return nil, fmt.Errorf("set language for %s: %w", path, err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse %s: no root node", path)
	}

	f := &File{Path: path, HasErrors: root.HasError()}
	for i := uint(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(i)
		if stmt == nil {
			continue
		}
		switch stmt.Kind() {
		case "import_statement":
			f.Imports = append(f.Imports, parseImportStatement(stmt, content)...)
		case "export_statement":
			imps, exps := parseExportStatement(stmt, content)
			f.Imports = append(f.Imports, imps...)
			f.Exports = append(f.Exports, exps...)
		}
	}

	walkTreePreOrder(root, func(node *sitter.Node) {
		switch node.Kind() {
		case "call_expression":
			if imp, ok := parseDynamicImport(node, content); ok {
				f.Imports = append(f.Imports, imp)
			}
		case "assignment_expression":
			if name, ok := parseCommonJSExport(node, content); ok {
				f.Exports = append(f.Exports, Export{Name: name})
			}
		}
	})

	return f, nil
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".jsx":
		return tsxLanguage
	default:
		return typeScriptLanguage
	}
}

func parseImportStatement(stmt *sitter.Node, content []byte) []Import {
	if isTypeOnly(stmt, content) {
		return nil
	}
	source := unquote(nodeText(stmt.ChildByFieldName("source"), content))
	if source == "" {
		return nil
	}

	var clause *sitter.Node
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		if child := stmt.NamedChild(i); child != nil && child.Kind() == "import_clause" {
			clause = child
			break
		}
	}
	if clause == nil {
		return []Import{{Source: source, Style: StyleSideEffect}}
	}

	var imports []Import
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		child := clause.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "identifier":
			imports = append(imports, Import{
				Source: source,
				Name:   "default",
				Local:  nodeText(child, content),
				Style:  StyleDefault,
			})
		case "namespace_import":
			imports = append(imports, Import{
				Source: source,
				Local:  lastIdentifier(child, content),
				Style:  StyleNamespace,
			})
		case "named_imports":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				spec := child.NamedChild(j)
				if spec == nil || spec.Kind() != "import_specifier" || isTypeOnly(spec, content) {
					continue
				}
				name := unquote(nodeText(spec.ChildByFieldName("name"), content))
				local := nodeText(spec.ChildByFieldName("alias"), content)
				if local == "" {
					local = name
				}
				style := StyleNamed
				if name == "default" {
					style = StyleDefault
				}
				imports = append(imports, Import{Source: source, Name: name, Local: local, Style: style})
			}
		}
	}
	return imports
}

func parseExportStatement(stmt *sitter.Node, content []byte) ([]Import, []Export) {
	if isTypeOnly(stmt, content) {
		return nil, nil
	}
	source := unquote(nodeText(stmt.ChildByFieldName("source"), content))

	var (
		imports []Import
		exports []Export
	)

	if hasChildKind(stmt, "default") {
		// `export default function Foo() {}` only exports "default"
		exports = append(exports, Export{Name: "default"})
	} else if decl := stmt.ChildByFieldName("declaration"); decl != nil {
		for _, name := range declarationNames(decl, content) {
			exports = append(exports, Export{Name: name})
		}
	}

	starExport := false
	for i := uint(0); i < stmt.ChildCount(); i++ {
		child := stmt.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "*":
			starExport = true
		case "namespace_export":
			name := lastIdentifier(child, content)
			exports = append(exports, Export{Name: name})
			if source != "" {
				imports = append(imports, Import{Source: source, Local: name, Style: StyleNamespace})
			}
		case "export_clause":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				spec := child.NamedChild(j)
				if spec == nil || spec.Kind() != "export_specifier" || isTypeOnly(spec, content) {
					continue
				}
				name := unquote(nodeText(spec.ChildByFieldName("name"), content))
				alias := unquote(nodeText(spec.ChildByFieldName("alias"), content))
				exported := name
				if alias != "" {
					exported = alias
				}
				exports = append(exports, Export{Name: exported})
				if source != "" {
					style := StyleNamed
					if name == "default" {
						style = StyleDefault
					}
					imports = append(imports, Import{Source: source, Name: name, Local: exported, Style: style})
				}
			}
		}
	}

	if starExport && source != "" {
		exports = append(exports, Export{From: source})
		imports = append(imports, Import{Source: source, Style: StyleNamespace})
	}

	return imports, exports
}

func parseDynamicImport(call *sitter.Node, content []byte) (Import, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return Import{}, false
	}
	isImport := fn.Kind() == "import"
	isRequire := fn.Kind() == "identifier" && nodeText(fn, content) == "require"
	if !isImport && !isRequire {
		return Import{}, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return Import{}, false
	}
	arg := args.NamedChild(0)
	if arg == nil || arg.Kind() != "string" {
		return Import{}, false
	}
	source := unquote(nodeText(arg, content))
	if source == "" {
		return Import{}, false
	}
	return Import{Source: source, Style: StyleDynamic}, true
}

// parseCommonJSExport recognises `exports.X = ...` and `module.exports.X = ...`.
func parseCommonJSExport(assign *sitter.Node, content []byte) (string, bool) {
	left := assign.ChildByFieldName("left")
	if left == nil || left.Kind() != "member_expression" {
		return "", false
	}
	object := nodeText(left.ChildByFieldName("object"), content)
	if object != "exports" && object != "module.exports" {
		return "", false
	}
	property := left.ChildByFieldName("property")
	if property == nil {
		return "", false
	}
	return nodeText(property, content), true
}

func declarationNames(decl *sitter.Node, content []byte) []string {
	switch decl.Kind() {
	case "lexical_declaration", "variable_declaration":
		var names []string
		for i := uint(0); i < decl.NamedChildCount(); i++ {
			declarator := decl.NamedChild(i)
			if declarator == nil || declarator.Kind() != "variable_declarator" {
				continue
			}
			name := declarator.ChildByFieldName("name")
			if name != nil && name.Kind() == "identifier" {
				names = append(names, nodeText(name, content))
			}
		}
		return names
	case "interface_declaration", "type_alias_declaration", "ambient_declaration":
		return nil
	default:
		if name := strings.TrimSpace(nodeText(decl.ChildByFieldName("name"), content)); name != "" {
			return []string{name}
		}
		return nil
	}
}

// isTypeOnly reports `import type`, `export type` and `type X` specifiers,
// which are erased at compile time.
func isTypeOnly(node *sitter.Node, content []byte) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.IsNamed() && (nodeText(child, content) == "type" || nodeText(child, content) == "typeof") {
			return true
		}
	}
	return false
}

func hasChildKind(node *sitter.Node, kind string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil && child.Kind() == kind {
			return true
		}
	}
	return false
}

func lastIdentifier(node *sitter.Node, content []byte) string {
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		child := node.NamedChild(uint(i))
		if child != nil && (child.Kind() == "identifier" || child.Kind() == "string") {
			return unquote(nodeText(child, content))
		}
	}
	return ""
}
