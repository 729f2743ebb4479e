package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

var pythonScopes = map[string]bool{
	"function_definition": true,
	"class_definition":    true,
}

type PythonExtractor struct {
	pool *ParserPool
}

func NewPythonExtractor(loader *GrammarLoader) *PythonExtractor {
	return &PythonExtractor{pool: loader.Pool("python")}
}

func (e *PythonExtractor) Extract(path string, content []byte) (record FactRecord) {
	ctx := newExtractionContext(path, "python", ConfidenceHigh, content)
	defer recoverExtraction(&record, ctx)

	tree := e.pool.Parse(content)
	if tree == nil {
		ctx.Record.Status = Failed("parser returned no tree")
		return *ctx.Record
	}
	defer tree.Close()

	root := tree.RootNode()
	if failed, ok := syntaxFailure(ctx, root); ok {
		return failed
	}

	ctx.Record.HasModuleDocstring = pythonHasDocstring(root)
	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement":      e.extractImport,
		"import_from_statement": e.extractFromImport,
		"function_definition":   e.extractFunction,
		"class_definition":      e.extractClass,
		"expression_statement":  e.extractAll,
	})
	engine.Walk(ctx, root)

	return *ctx.Record
}

func (e *PythonExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		switch child.Kind() {
		case "dotted_name":
			ctx.AddImport(child, ImportEdge{Specifier: ctx.Text(child), Form: FormImport})
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				ctx.AddImport(child, ImportEdge{Specifier: ctx.Text(name), Form: FormImport})
			}
		}
	}
	return true
}

func (e *PythonExtractor) extractFromImport(ctx *ExtractionContext, node *sitter.Node) bool {
	edge := ImportEdge{Form: FormFrom}
	seen := make(map[string]bool)
	afterImport := false

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)

		switch child.Kind() {
		case "import":
			afterImport = true
		case "relative_import":
			edge.Relative = true
			edge.Specifier = ctx.Text(child)
			edge.Level = len(edge.Specifier) - len(strings.TrimLeft(edge.Specifier, "."))
		case "dotted_name":
			if afterImport {
				edge.Names = appendUnique(edge.Names, seen, ctx.Text(child))
			} else {
				edge.Specifier = ctx.Text(child)
			}
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				edge.Names = appendUnique(edge.Names, seen, ctx.Text(name))
			}
		case "wildcard_import":
			edge.Names = appendUnique(edge.Names, seen, "*")
		}
	}

	ctx.AddImport(node, edge)
	return true
}

func (e *PythonExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	e.addDefinition(ctx, node, SymbolFunction)
	return false
}

func (e *PythonExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	e.addDefinition(ctx, node, SymbolClass)
	return false
}

func (e *PythonExtractor) addDefinition(ctx *ExtractionContext, node *sitter.Node, kind SymbolKind) {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sym := ctx.AddSymbol(node, name, kind, ancestorDepth(node, pythonScopes))
	sym.HasDocstring = pythonHasDocstring(node.ChildByFieldName("body"))
	sym.Decorators = pythonDecorators(ctx, node)
}

// extractAll records module-level __all__ assignments as exports.
func (e *PythonExtractor) extractAll(ctx *ExtractionContext, node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "module" {
		return true
	}
	assign := node.NamedChild(0)
	if assign == nil || assign.Kind() != "assignment" {
		return true
	}
	if ctx.Text(assign.ChildByFieldName("left")) != "__all__" {
		return true
	}
	right := assign.ChildByFieldName("right")
	if right == nil || (right.Kind() != "list" && right.Kind() != "tuple") {
		return true
	}
	for i := uint(0); i < right.NamedChildCount(); i++ {
		item := right.NamedChild(i)
		if item.Kind() == "string" {
			ctx.AddExport(trimQuoted(ctx.Text(item)))
		}
	}
	return true
}

// pythonHasDocstring reports whether the first statement of body (a module or
// block) is a bare string expression.
func pythonHasDocstring(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		stmt := body.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() != 1 {
			return false
		}
		expr := stmt.NamedChild(0)
		return expr.Kind() == "string" || expr.Kind() == "concatenated_string"
	}
	return false
}

func pythonDecorators(ctx *ExtractionContext, node *sitter.Node) []string {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}

	var decorators []string
	for i := uint(0); i < parent.ChildCount(); i++ {
		child := parent.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ctx.Text(child)), "@"))
		if dec != "" {
			decorators = append(decorators, dec)
		}
	}
	return decorators
}
