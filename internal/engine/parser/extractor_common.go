package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func trimQuoted(value string) string {
	value = strings.TrimSpace(value)
	return strings.Trim(value, "\"'`")
}

func isCapitalized(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper(rune(name[0]))
}

func appendUnique(values []string, seen map[string]bool, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return values
	}
	if seen[value] {
		return values
	}
	seen[value] = true
	return append(values, value)
}

func hasAnyPrefix(value string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// LanguageFamily groups languages whose modules may import each other.
func LanguageFamily(language string) string {
	switch language {
	case "javascript", "typescript", "tsx":
		return "javascript"
	case "c", "cpp":
		return "c"
	default:
		return language
	}
}

func syntaxErrorReason(node *sitter.Node) string {
	pos := node.StartPosition()
	what := "syntax error"
	if node.IsMissing() {
		what = "missing " + node.Kind()
	}
	return fmt.Sprintf("%s at line %d, column %d", what, pos.Row+1, pos.Column+1)
}

func hasDescendantPrefix(node *sitter.Node, prefix string) bool {
	if node == nil {
		return false
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if strings.HasPrefix(child.Kind(), prefix) || hasDescendantPrefix(child, prefix) {
			return true
		}
	}
	return false
}

// lineComments lists single-line comment markers per language; languages not
// listed use the C-like default plus '#', '--' and ';'.
var lineComments = map[string][]string{
	"python":     {"#"},
	"javascript": {"//"},
	"typescript": {"//"},
	"tsx":        {"//"},
	"go":         {"//"},
	"rust":       {"//"},
	"java":       {"//"},
	"css":        {},
	"html":       {},
}

// countLinesOfCode counts non-blank lines that are not comment-only. Block
// comments use /* */ except for python, which has none.
func countLinesOfCode(content []byte, language string) int {
	markers, ok := lineComments[language]
	if !ok {
		markers = []string{"//", "#", "--", ";"}
	}
	blockComments := language != "python"

	count := 0
	inBlock := false
	for _, raw := range bytes.Split(content, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		if blockComments {
			if inBlock {
				end := strings.Index(line, "*/")
				if end < 0 {
					continue
				}
				inBlock = false
				line = strings.TrimSpace(line[end+2:])
				if line == "" {
					continue
				}
			}
			if start := strings.Index(line, "/*"); start >= 0 {
				before := strings.TrimSpace(line[:start])
				rest := line[start+2:]
				after := ""
				if end := strings.Index(rest, "*/"); end >= 0 {
					after = strings.TrimSpace(rest[end+2:])
				} else {
					inBlock = true
				}
				if before != "" || after != "" {
					count++
				}
				continue
			}
		}
		if hasAnyPrefix(line, markers...) {
			continue
		}
		count++
	}
	return count
}
