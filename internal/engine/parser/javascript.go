package parser

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

var jsScopes = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
	"class_declaration":              true,
	"abstract_class_declaration":     true,
	"class":                          true,
}

// JavaScriptExtractor handles JavaScript, TypeScript and TSX. The grammar is
// picked from the file extension.
type JavaScriptExtractor struct {
	loader *GrammarLoader
}

func NewJavaScriptExtractor(loader *GrammarLoader) *JavaScriptExtractor {
	return &JavaScriptExtractor{loader: loader}
}

func (e *JavaScriptExtractor) Extract(filePath string, content []byte) (record FactRecord) {
	language := LanguageForPath(filePath)
	if languages[language].extractor != kindJavaScript {
		language = "javascript"
	}
	ctx := newExtractionContext(filePath, language, ConfidenceHigh, content)
	defer recoverExtraction(&record, ctx)

	pool := e.loader.Pool(language)
	if strings.EqualFold(path.Ext(filePath), ".jsx") {
		// JSX is part of the javascript grammar.
		pool = e.loader.Pool("javascript")
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

	engine := NewExtractorEngine(map[string]NodeHandler{
		"import_statement":               e.extractImport,
		"export_statement":               e.extractExport,
		"call_expression":                e.extractCall,
		"assignment_expression":          e.extractCommonJSExport,
		"function_declaration":           e.extractFunction,
		"generator_function_declaration": e.extractFunction,
		"class_declaration":              e.extractClass,
		"abstract_class_declaration":     e.extractClass,
		"method_definition":              e.extractMethod,
		"variable_declarator":            e.extractDeclarator,
	})
	engine.Walk(ctx, root)

	return *ctx.Record
}

func (e *JavaScriptExtractor) extractImport(ctx *ExtractionContext, node *sitter.Node) bool {
	module := trimQuoted(ctx.Text(node.ChildByFieldName("source")))
	if module == "" {
		return true
	}

	seen := make(map[string]bool)
	var names []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "import_specifier":
			names = appendUnique(names, seen, ctx.Text(n.ChildByFieldName("name")))
			return
		case "namespace_import":
			names = appendUnique(names, seen, "*")
			return
		case "identifier":
			if n.Parent() != nil && n.Parent().Kind() == "import_clause" {
				names = appendUnique(names, seen, "default")
			}
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.Kind() == "import_clause" {
			walk(child)
		}
	}

	ctx.AddImport(node, ImportEdge{
		Specifier: module,
		Relative:  isRelativeSpecifier(module),
		Names:     names,
		Form:      FormImport,
	})
	return true
}

func (e *JavaScriptExtractor) extractExport(ctx *ExtractionContext, node *sitter.Node) bool {
	if source := node.ChildByFieldName("source"); source != nil {
		module := trimQuoted(ctx.Text(source))
		var names []string
		seen := make(map[string]bool)
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			switch child.Kind() {
			case "*":
				names = appendUnique(names, seen, "*")
			case "namespace_export":
				names = appendUnique(names, seen, "*")
				ctx.AddExport(lastIdentifier(ctx, child))
			case "export_clause":
				for _, spec := range exportSpecifiers(ctx, child) {
					names = appendUnique(names, seen, spec[0])
					ctx.AddExport(spec[1])
				}
			}
		}
		ctx.AddImport(node, ImportEdge{
			Specifier: module,
			Relative:  isRelativeSpecifier(module),
			Names:     names,
			Form:      FormExportFrom,
		})
		return true
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "default":
			ctx.AddExport("default")
		case "export_clause":
			for _, spec := range exportSpecifiers(ctx, child) {
				ctx.AddExport(spec[1])
			}
		}
	}
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		switch decl.Kind() {
		case "lexical_declaration", "variable_declaration":
			for i := uint(0); i < decl.NamedChildCount(); i++ {
				if d := decl.NamedChild(i); d.Kind() == "variable_declarator" {
					ctx.AddExport(ctx.Text(d.ChildByFieldName("name")))
				}
			}
		default:
			ctx.AddExport(ctx.Text(decl.ChildByFieldName("name")))
		}
	}
	return false
}

// exportSpecifiers returns (local, exported) name pairs of an export clause.
func exportSpecifiers(ctx *ExtractionContext, clause *sitter.Node) [][2]string {
	var out [][2]string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		spec := clause.NamedChild(i)
		if spec.Kind() != "export_specifier" {
			continue
		}
		local := ctx.Text(spec.ChildByFieldName("name"))
		exported := local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			exported = ctx.Text(alias)
		}
		out = append(out, [2]string{local, exported})
	}
	return out
}

func lastIdentifier(ctx *ExtractionContext, node *sitter.Node) string {
	name := ""
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child.Kind() == "identifier" {
			name = ctx.Text(child)
		}
	}
	return name
}

// extractCall picks up require("x") and import("x").
func (e *JavaScriptExtractor) extractCall(ctx *ExtractionContext, node *sitter.Node) bool {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	var form ImportForm
	switch {
	case fn.Kind() == "import":
		form = FormDynamic
	case fn.Kind() == "identifier" && ctx.Text(fn) == "require":
		form = FormRequire
	default:
		return false
	}

	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return false
	}
	first := args.NamedChild(0)
	if first.Kind() != "string" {
		return false
	}
	module := trimQuoted(ctx.Text(first))
	ctx.AddImport(node, ImportEdge{Specifier: module, Relative: isRelativeSpecifier(module), Form: form})
	return false
}

// extractCommonJSExport records module.exports and exports.name assignments.
func (e *JavaScriptExtractor) extractCommonJSExport(ctx *ExtractionContext, node *sitter.Node) bool {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "member_expression" {
		return false
	}
	object := ctx.Text(left.ChildByFieldName("object"))
	property := ctx.Text(left.ChildByFieldName("property"))
	switch {
	case object == "module" && property == "exports":
		ctx.AddExport("default")
	case object == "exports" || object == "module.exports":
		ctx.AddExport(property)
	}
	return false
}

func (e *JavaScriptExtractor) extractFunction(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return false
	}
	sym := ctx.AddSymbol(node, name, SymbolFunction, ancestorDepth(node, jsScopes))
	sym.HasDocstring = hasJSDoc(ctx, docTarget(node))
	sym.Component = isComponent(name, node.ChildByFieldName("body"))
	return false
}

func (e *JavaScriptExtractor) extractClass(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return false
	}
	sym := ctx.AddSymbol(node, name, SymbolClass, ancestorDepth(node, jsScopes))
	sym.HasDocstring = hasJSDoc(ctx, docTarget(node))
	sym.Decorators = jsDecorators(ctx, node)
	return false
}

func (e *JavaScriptExtractor) extractMethod(ctx *ExtractionContext, node *sitter.Node) bool {
	name := ctx.Text(node.ChildByFieldName("name"))
	if name == "" {
		return false
	}
	sym := ctx.AddSymbol(node, name, SymbolFunction, ancestorDepth(node, jsScopes))
	sym.HasDocstring = hasJSDoc(ctx, node)
	sym.Decorators = jsDecorators(ctx, node)
	return false
}

// extractDeclarator handles `const f = () => {}` and `const C = class {}`.
func (e *JavaScriptExtractor) extractDeclarator(ctx *ExtractionContext, node *sitter.Node) bool {
	nameNode := node.ChildByFieldName("name")
	value := node.ChildByFieldName("value")
	if nameNode == nil || nameNode.Kind() != "identifier" || value == nil {
		return false
	}

	var kind SymbolKind
	switch value.Kind() {
	case "arrow_function", "function_expression", "function", "generator_function":
		kind = SymbolFunction
	case "class":
		kind = SymbolClass
	default:
		return false
	}

	name := ctx.Text(nameNode)
	sym := ctx.AddSymbol(node, name, kind, ancestorDepth(node, jsScopes))
	sym.HasDocstring = hasJSDoc(ctx, docTarget(node.Parent()))
	if kind == SymbolFunction {
		sym.Component = isComponent(name, value.ChildByFieldName("body"))
	}
	return false
}

// docTarget is the statement a JSDoc block would precede.
func docTarget(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if parent := node.Parent(); parent != nil && parent.Kind() == "export_statement" {
		return parent
	}
	return node
}

func hasJSDoc(ctx *ExtractionContext, node *sitter.Node) bool {
	if node == nil {
		return false
	}
	prev := node.PrevSibling()
	for prev != nil && prev.Kind() == "decorator" {
		prev = prev.PrevSibling()
	}
	if prev == nil || prev.Kind() != "comment" {
		return false
	}
	if !strings.HasPrefix(ctx.Text(prev), "/**") {
		return false
	}
	return prev.EndPosition().Row+1 >= node.StartPosition().Row
}

func jsDecorators(ctx *ExtractionContext, node *sitter.Node) []string {
	var decorators []string
	add := func(n *sitter.Node) {
		if dec := strings.TrimSpace(strings.TrimPrefix(ctx.Text(n), "@")); dec != "" {
			decorators = append(decorators, dec)
		}
	}

	var preceding []*sitter.Node
	for prev := node.PrevSibling(); prev != nil && prev.Kind() == "decorator"; prev = prev.PrevSibling() {
		preceding = append([]*sitter.Node{prev}, preceding...)
	}
	for _, n := range preceding {
		add(n)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.Kind() == "decorator" {
			add(child)
		}
	}
	return decorators
}

func isComponent(name string, body *sitter.Node) bool {
	if !isCapitalized(name) || body == nil {
		return false
	}
	return strings.HasPrefix(body.Kind(), "jsx_") || hasDescendantPrefix(body, "jsx_")
}

func isRelativeSpecifier(spec string) bool {
	return spec == "." || spec == ".." || hasAnyPrefix(spec, "./", "../")
}
