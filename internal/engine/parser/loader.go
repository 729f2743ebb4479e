package parser

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

type extractorKind int

const (
	kindGeneric extractorKind = iota
	kindPython
	kindJavaScript
)

type languageSpec struct {
	extractor  extractorKind
	extensions []string
}

// languages is the static dispatch table. Every extension listed here is an
// enumeration candidate.
var languages = map[string]languageSpec{
	"python":     {extractor: kindPython, extensions: []string{".py", ".pyi"}},
	"javascript": {extractor: kindJavaScript, extensions: []string{".js", ".jsx", ".mjs", ".cjs"}},
	"typescript": {extractor: kindJavaScript, extensions: []string{".ts"}},
	"tsx":        {extractor: kindJavaScript, extensions: []string{".tsx"}},

	"go":      {extensions: []string{".go"}},
	"rust":    {extensions: []string{".rs"}},
	"java":    {extensions: []string{".java"}},
	"css":     {extensions: []string{".css"}},
	"html":    {extensions: []string{".html", ".htm"}},
	"ruby":    {extensions: []string{".rb"}},
	"c":       {extensions: []string{".c", ".h"}},
	"cpp":     {extensions: []string{".cpp", ".cc", ".cxx", ".hpp"}},
	"csharp":  {extensions: []string{".cs"}},
	"php":     {extensions: []string{".php"}},
	"swift":   {extensions: []string{".swift"}},
	"kotlin":  {extensions: []string{".kt", ".kts"}},
	"scala":   {extensions: []string{".scala"}},
	"lua":     {extensions: []string{".lua"}},
	"r":       {extensions: []string{".r"}},
	"julia":   {extensions: []string{".jl"}},
	"elixir":  {extensions: []string{".ex", ".exs"}},
	"erlang":  {extensions: []string{".erl"}},
	"haskell": {extensions: []string{".hs"}},
	"ocaml":   {extensions: []string{".ml"}},
	"vim":     {extensions: []string{".vim"}},
	"shell":   {extensions: []string{".sh", ".bash", ".zsh", ".fish"}},
}

var extensionLanguage = func() map[string]string {
	out := make(map[string]string)
	for lang, spec := range languages {
		for _, ext := range spec.extensions {
			out[ext] = lang
		}
	}
	return out
}()

// LanguageForPath maps a file path to its language tag, or "" when no
// extractor handles it.
func LanguageForPath(filePath string) string {
	return extensionLanguage[strings.ToLower(path.Ext(filePath))]
}

// grammarFor returns the linked tree-sitter grammar for a language, or nil.
func grammarFor(language string) *sitter.Language {
	switch language {
	case "python":
		return sitter.NewLanguage(tree_sitter_python.Language())
	case "javascript":
		return sitter.NewLanguage(tree_sitter_javascript.Language())
	case "typescript":
		return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case "tsx":
		return sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	case "go":
		return sitter.NewLanguage(tree_sitter_go.Language())
	case "rust":
		return sitter.NewLanguage(tree_sitter_rust.Language())
	case "java":
		return sitter.NewLanguage(tree_sitter_java.Language())
	case "css":
		return sitter.NewLanguage(tree_sitter_css.Language())
	case "html":
		return sitter.NewLanguage(tree_sitter_html.Language())
	default:
		return nil
	}
}

// GrammarLoader owns one parser pool per linked grammar.
type GrammarLoader struct {
	pools map[string]*ParserPool
}

func NewGrammarLoader() *GrammarLoader {
	gl := &GrammarLoader{pools: make(map[string]*ParserPool)}
	for lang := range languages {
		if grammar := grammarFor(lang); grammar != nil {
			gl.pools[lang] = NewParserPool(grammar)
		}
	}
	return gl
}

// Pool returns the parser pool for language, or nil if no grammar is linked.
func (gl *GrammarLoader) Pool(language string) *ParserPool {
	return gl.pools[language]
}
