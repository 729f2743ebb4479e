package parser

import (
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeTag classifies the structural role of a node kind.
type NodeTag string

const (
	TagImport NodeTag = "IMPORT"
	TagSkip   NodeTag = "SKIP"
	TagClass  NodeTag = "CLASS"
	TagFunc   NodeTag = "FUNC"
	TagDef    NodeTag = "DEF"
)

type patternTier struct {
	re  *regexp.Regexp
	tag NodeTag
}

// genericPatternTiers is evaluated top to bottom; first match wins.
var genericPatternTiers = func() []patternTier {
	specs := []struct {
		pattern string
		tag     NodeTag
	}{
		// Import-like kinds across the linked grammars (go, java, rust, css).
		{`(?i)^(import_declaration|import_spec|use_declaration|import_statement|extern_crate_declaration)$`, TagImport},

		// Declarations that never name a module-level symbol.
		{`(?i)(^|_)(var|const|field|package|short_var|local_variable|let|constant|parameter|module)_declaration$`, TagSkip},
		{`(?i)^(type_declaration|const_item|static_item|let_declaration|attribute_item)$`, TagSkip},

		{`(?i)^(type_spec|class_declaration|interface_declaration|enum_declaration|record_declaration|annotation_type_declaration|struct_item|enum_item|union_item|trait_item|class_definition)$`, TagClass},
		{`(?i)^(function_declaration|method_declaration|constructor_declaration|function_item|function_signature_item|function_definition|method_definition)$`, TagFunc},

		// Anything else shaped like a declaration.
		{`(?i)(^|_)(declaration|definition)$`, TagDef},
	}

	tiers := make([]patternTier, 0, len(specs))
	for _, s := range specs {
		tiers = append(tiers, patternTier{re: regexp.MustCompile(s.pattern), tag: s.tag})
	}
	return tiers
}()

func classifyNodeKind(kind string) (NodeTag, bool) {
	for _, tier := range genericPatternTiers {
		if tier.re.MatchString(kind) {
			return tier.tag, true
		}
	}
	return "", false
}

// GenericExtractor covers every language without a dedicated extractor. It
// walks the syntax tree when a grammar is linked and falls back to line
// heuristics otherwise. Its facts are always low confidence.
type GenericExtractor struct {
	loader *GrammarLoader
}

func NewGenericExtractor(loader *GrammarLoader) *GenericExtractor {
	return &GenericExtractor{loader: loader}
}

func (e *GenericExtractor) Extract(path string, content []byte) (record FactRecord) {
	language := LanguageForPath(path)
	ctx := newExtractionContext(path, language, ConfidenceLow, content)
	defer recoverExtraction(&record, ctx)

	pool := e.loader.Pool(language)
	if pool == nil {
		extractHeuristic(ctx)
		return *ctx.Record
	}

	tree := pool.Parse(content)
	if tree == nil {
		ctx.Record.Status = Failed("parser returned no tree")
		return *ctx.Record
	}
	defer tree.Close()

	root := tree.RootNode()
	if failed, ok := syntaxFailure(ctx, root); ok {
		return failed
	}
	walkGeneric(ctx, root, 0)
	return *ctx.Record
}

func walkGeneric(ctx *ExtractionContext, node *sitter.Node, depth int) {
	if node == nil {
		return
	}

	childDepth := depth
	if node.Kind() == "element" || node.Kind() == "script_element" {
		extractHTMLReference(ctx, node)
	}
	if tag, ok := classifyNodeKind(node.Kind()); ok {
		switch tag {
		case TagImport:
			for _, spec := range importSpecifiers(ctx, node) {
				ctx.AddImport(node, ImportEdge{Specifier: spec, Relative: isRelativeSpecifier(spec), Form: FormImport})
			}
			return
		case TagClass, TagFunc, TagDef:
			if name := genericNodeName(ctx, node); name != "" {
				kind := SymbolFunction
				if tag == TagClass {
					kind = SymbolClass
				}
				ctx.AddSymbol(node, name, kind, depth)
				childDepth = depth + 1
			}
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		walkGeneric(ctx, node.Child(i), childDepth)
	}
}

var stringKinds = map[string]bool{
	"interpreted_string_literal": true,
	"raw_string_literal":         true,
	"string_literal":             true,
	"string_value":               true,
	"string":                     true,
}

var pathKinds = map[string]bool{
	"identifier":        true,
	"scoped_identifier": true,
	"scoped_use_list":   true,
	"use_as_clause":     true,
	"use_wildcard":      true,
	"use_list":          true,
}

// importSpecifiers returns the specifiers named by an import-like node: every
// string literal beneath it, or failing that the first path-like child.
func importSpecifiers(ctx *ExtractionContext, node *sitter.Node) []string {
	var specs []string
	var collect func(*sitter.Node)
	collect = func(n *sitter.Node) {
		if stringKinds[n.Kind()] {
			spec := trimQuoted(ctx.Text(n))
			spec = strings.TrimSuffix(strings.TrimPrefix(spec, "url("), ")")
			if spec = trimQuoted(spec); spec != "" {
				specs = append(specs, spec)
			}
			return
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			collect(n.NamedChild(i))
		}
	}
	collect(node)
	if len(specs) > 0 {
		return specs
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if !pathKinds[child.Kind()] {
			continue
		}
		if spec := normalizePathSpecifier(ctx.Text(child)); spec != "" {
			return []string{spec}
		}
	}
	return nil
}

// normalizePathSpecifier trims brace groups, aliases and wildcards from a
// java or rust style path.
func normalizePathSpecifier(raw string) string {
	spec := strings.TrimSpace(raw)
	if idx := strings.Index(spec, "{"); idx >= 0 {
		spec = spec[:idx]
	}
	if idx := strings.Index(spec, " as "); idx >= 0 {
		spec = spec[:idx]
	}
	spec = strings.TrimSuffix(spec, "*")
	spec = strings.TrimSuffix(spec, "::")
	spec = strings.TrimSuffix(spec, ".")
	return strings.TrimSpace(spec)
}

func genericNodeName(ctx *ExtractionContext, node *sitter.Node) string {
	if name := node.ChildByFieldName("name"); name != nil {
		if text := strings.TrimSpace(ctx.Text(name)); text != "" && len(text) <= 128 {
			return text
		}
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "identifier", "type_identifier", "field_identifier", "name":
			if text := strings.TrimSpace(ctx.Text(child)); text != "" && len(text) <= 128 {
				return text
			}
		}
	}
	return ""
}

// extractHTMLReference treats local src/href attributes as imports.
func extractHTMLReference(ctx *ExtractionContext, element *sitter.Node) {
	tag := element.NamedChild(0)
	if tag == nil || (tag.Kind() != "start_tag" && tag.Kind() != "self_closing_tag") {
		return
	}
	for i := uint(0); i < tag.NamedChildCount(); i++ {
		attr := tag.NamedChild(i)
		if attr.Kind() != "attribute" {
			continue
		}
		var name, value string
		for j := uint(0); j < attr.NamedChildCount(); j++ {
			part := attr.NamedChild(j)
			switch part.Kind() {
			case "attribute_name":
				name = strings.ToLower(ctx.Text(part))
			case "quoted_attribute_value", "attribute_value":
				value = trimQuoted(ctx.Text(part))
			}
		}
		if (name != "src" && name != "href") || value == "" {
			continue
		}
		if strings.Contains(value, "://") || hasAnyPrefix(value, "#", "//", "data:", "mailto:", "javascript:") {
			continue
		}
		ctx.AddImport(attr, ImportEdge{Specifier: value, Relative: isRelativeSpecifier(value), Form: FormImport})
	}
}

var (
	heuristicFunc  = regexp.MustCompile(`^\s*(?:export\s+|pub(?:\([^)]*\))?\s+|public\s+|private\s+|static\s+|async\s+|local\s+)*(?:func|def|defp|fn|function!?|fun|sub|proc)\s+([A-Za-z_][\w.!?]*)`)
	heuristicClass = regexp.MustCompile(`^\s*(?:export\s+|pub\s+|public\s+|private\s+|abstract\s+|final\s+|sealed\s+|data\s+|open\s+)*(?:class|struct|interface|trait|module|object|enum|defmodule|protocol)\s+([A-Za-z_][\w.]*)`)
	heuristicShFn  = regexp.MustCompile(`^\s*([A-Za-z_][\w-]*)\s*\(\)\s*\{`)

	heuristicInclude = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)
	heuristicRequire = regexp.MustCompile(`\b(require_relative|require|require_once|include_once|include|library|source)\s*\(?\s*['"]([^'"]+)['"]`)
	heuristicImport  = regexp.MustCompile(`^\s*(?:import|use|using|alias|open)\s+(?:static\s+|qualified\s+)?([A-Za-z_@.][\w./:\\@-]*)`)
	heuristicSource  = regexp.MustCompile(`^\s*(?:source|\.)\s+([\w./-]+\.(?:sh|bash|zsh|fish))\b`)
)

// extractHeuristic scans lines for definition and import keywords.
func extractHeuristic(ctx *ExtractionContext) {
	lines := strings.Split(string(ctx.Source), "\n")
	for i, line := range lines {
		lineNo := i + 1

		if m := heuristicClass.FindStringSubmatch(line); m != nil {
			addHeuristicSymbol(ctx, m[1], SymbolClass, lineNo)
		} else if m := heuristicFunc.FindStringSubmatch(line); m != nil {
			addHeuristicSymbol(ctx, m[1], SymbolFunction, lineNo)
		} else if ctx.Record.File.Language == "shell" {
			if m := heuristicShFn.FindStringSubmatch(line); m != nil {
				addHeuristicSymbol(ctx, m[1], SymbolFunction, lineNo)
			}
		}

		switch {
		case heuristicInclude.MatchString(line):
			m := heuristicInclude.FindStringSubmatch(line)
			addHeuristicImport(ctx, m[2], m[1] == `"`, lineNo)
		case heuristicSource.MatchString(line):
			m := heuristicSource.FindStringSubmatch(line)
			addHeuristicImport(ctx, m[1], true, lineNo)
		case heuristicRequire.MatchString(line):
			m := heuristicRequire.FindStringSubmatch(line)
			addHeuristicImport(ctx, m[2], m[1] == "require_relative" || isRelativeSpecifier(m[2]), lineNo)
		case heuristicImport.MatchString(line):
			m := heuristicImport.FindStringSubmatch(line)
			spec := strings.TrimRight(normalizePathSpecifier(m[1]), ";")
			addHeuristicImport(ctx, spec, isRelativeSpecifier(spec), lineNo)
		}
	}
}

func addHeuristicSymbol(ctx *ExtractionContext, name string, kind SymbolKind, line int) {
	ctx.Record.Symbols = append(ctx.Record.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		File:      ctx.Record.File.Path,
		StartLine: line,
		EndLine:   line,
	})
}

func addHeuristicImport(ctx *ExtractionContext, spec string, relative bool, line int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return
	}
	ctx.Record.Imports = append(ctx.Record.Imports, ImportEdge{
		Specifier: spec,
		File:      ctx.Record.File.Path,
		Line:      line,
		Relative:  relative,
		Form:      FormHeuristic,
	})
}
