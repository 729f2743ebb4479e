package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node for a language-specific extractor.
// Returns true if the handler has processed children and the walker should stop.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries shared state/helpers used by all extractors.
type ExtractionContext struct {
	Source            []byte
	Record            *FactRecord
	ProcessedChildren bool // If true, the walker will skip this node's children
}

func newExtractionContext(path, language string, confidence Confidence, source []byte) *ExtractionContext {
	return &ExtractionContext{
		Source: source,
		Record: &FactRecord{
			File:       SourceFile{Path: path, Language: language},
			Confidence: confidence,
			Status:     OK(),
		},
	}
}

func (c *ExtractionContext) ResetProcessedChildren() {
	c.ProcessedChildren = false
}

// ExtractorEngine walks the syntax tree and dispatches node handlers by kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	ctx.ResetProcessedChildren()
	stop := false
	if handler, ok := e.handlers[node.Kind()]; ok {
		stop = handler(ctx, node)
	}

	if !stop && !ctx.ProcessedChildren {
		for i := uint(0); i < node.ChildCount(); i++ {
			e.Walk(ctx, node.Child(i))
		}
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start >= end || end > uint(len(c.Source)) {
		return ""
	}
	return string(c.Source[start:end])
}

func (c *ExtractionContext) AddSymbol(node *sitter.Node, name string, kind SymbolKind, depth int) *Symbol {
	c.Record.Symbols = append(c.Record.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		File:      c.Record.File.Path,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
		Depth:     depth,
	})
	return &c.Record.Symbols[len(c.Record.Symbols)-1]
}

func (c *ExtractionContext) AddImport(node *sitter.Node, edge ImportEdge) {
	edge.Specifier = strings.TrimSpace(edge.Specifier)
	if edge.Specifier == "" {
		return
	}
	edge.File = c.Record.File.Path
	if edge.Line == 0 {
		edge.Line = int(node.StartPosition().Row) + 1
	}
	c.Record.Imports = append(c.Record.Imports, edge)
}

func (c *ExtractionContext) AddExport(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, existing := range c.Record.Exports {
		if existing == name {
			return
		}
	}
	c.Record.Exports = append(c.Record.Exports, name)
}

// ancestorDepth counts the ancestors of node whose kind is in scopes.
func ancestorDepth(node *sitter.Node, scopes map[string]bool) int {
	depth := 0
	for p := node.Parent(); p != nil; p = p.Parent() {
		if scopes[p.Kind()] {
			depth++
		}
	}
	return depth
}

// firstSyntaxError returns the first ERROR or MISSING node in document order.
func firstSyntaxError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstSyntaxError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
