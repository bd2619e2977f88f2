package jsparse

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Utf8Text(source)
}

// unquote strips the quotes of a string literal. Module specifiers never
// contain escapes worth decoding, so single and double quotes are handled alike.
func unquote(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return raw
	}
	first, last := raw[0], raw[len(raw)-1]
	if first == last && (first == '"' || first == '\'' || first == '`') {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func walkTreePreOrder(root *sitter.Node, visit func(*sitter.Node)) {
	if root == nil || visit == nil {
		return
	}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(node)

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			child := node.Child(uint(i))
			if child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// IsBareSpecifier reports whether spec names a package rather than a file:
// not relative, not absolute, not a URL.
func IsBareSpecifier(spec string) bool {
	if spec == "" {
		return false
	}
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "\\") {
		return false
	}
	if len(spec) > 1 && spec[1] == ':' {
		// windows drive letter
		return false
	}
	if strings.Contains(spec, "://") || strings.HasPrefix(spec, "data:") {
		return false
	}
	return true
}

// PackageName returns the package part of a bare specifier:
// "lodash/get" -> "lodash", "@scope/pkg/sub" -> "@scope/pkg".
func PackageName(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
