package graph

import (
	"strings"
	"unicode"
)

// SplitIdentifier breaks a code identifier or path into lowercase search
// terms. It understands camelCase, PascalCase, snake_case, kebab-case,
// dotted names and path separators, so a natural-language query like
// "login controller" can match LoginController.
func SplitIdentifier(s string) []string {
	if s == "" {
		return nil
	}

	var terms []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			terms = append(terms, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// Boundary at lower->Upper and at the last upper of an
			// acronym run (HTTPServer -> http, server).
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || unicode.IsDigit(prev) ||
					(unicode.IsUpper(prev) && unicode.IsLower(next)) {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return terms
}

// TermSet returns the deduplicated term set for a node's searchable text
// (name, path and string metadata values).
func TermSet(n *Node) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range SplitIdentifier(n.Name) {
		set[t] = struct{}{}
	}
	for _, t := range SplitIdentifier(n.Path) {
		set[t] = struct{}{}
	}
	if lang := n.Language(); lang != "" {
		set[strings.ToLower(lang)] = struct{}{}
	}
	if fw := n.Framework(); fw != "" {
		set[strings.ToLower(fw)] = struct{}{}
	}
	return set
}
