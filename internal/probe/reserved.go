package probe

import "unicode"

// Reserved lists export names that cannot be imported as named bindings in a
// generated shim. "default" is included: the default export always maps to
// the whole module.
var Reserved = []string{
	"let", "var", "const", "function", "class", "new", "delete",
	"import", "export", "default", "typeof", "in", "of", "instanceof", "void",
	"await", "return", "try", "catch", "throw", "if", "else", "switch", "case",
}

var reservedSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Reserved))
	for _, word := range Reserved {
		set[word] = struct{}{}
	}
	return set
}()

// IsReserved reports whether symbol must be loaded through the whole module
// rather than a per-symbol shim: a reserved word, or a name that is not a
// plain identifier.
func IsReserved(symbol string) bool {
	if _, ok := reservedSet[symbol]; ok {
		return true
	}
	return !isIdentifier(symbol)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)):
		default:
			return false
		}
	}
	return true
}
