package resolver

import (
	"path"
	"sort"
	"strings"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/engine/parser"

	"github.com/bmatcuk/doublestar/v4"
)

// ExternalPrefix marks graph nodes for import targets outside the tree.
const ExternalPrefix = "external:"

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".d.ts"}

type Resolution struct {
	Target   string
	External bool
	// Also holds further internal targets of the same edge, such as the
	// remaining submodules of `from pkg import a, b`.
	Also []string
}

func ExternalID(specifier string) string {
	return ExternalPrefix + specifier
}

func IsExternal(id string) bool {
	return strings.HasPrefix(id, ExternalPrefix)
}

// Resolver maps import specifiers to indexed files. It only consults the set
// of indexed paths it was built from, so the same inputs always resolve the
// same way regardless of what is on disk.
type Resolver struct {
	paths map[string]bool
	stems map[string][]string
	roots []string
}

// New builds a resolver over paths (slash separated, relative to the project
// root). rootPatterns are doublestar patterns selecting module roots among the
// tree's directories; empty means the project root plus every top-level
// directory.
func New(paths []string, rootPatterns []string) (*Resolver, error) {
	r := &Resolver{
		paths: make(map[string]bool, len(paths)),
		stems: make(map[string][]string),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		r.paths[p] = true
		stem := stripExt(p)
		r.stems[stem] = append(r.stems[stem], p)
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			dirs[dir] = true
		}
	}
	for stem := range r.stems {
		sort.Strings(r.stems[stem])
	}

	roots, err := selectRoots(dirs, rootPatterns)
	if err != nil {
		return nil, err
	}
	r.roots = roots
	return r, nil
}

func selectRoots(dirs map[string]bool, patterns []string) ([]string, error) {
	var selected []string
	if len(patterns) == 0 {
		for dir := range dirs {
			if !strings.Contains(dir, "/") {
				selected = append(selected, dir)
			}
		}
		sort.Strings(selected)
		return append([]string{"."}, selected...), nil
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, coreerrors.AddContext(
				coreerrors.New(coreerrors.CodeConfig, "invalid resolver root pattern"),
				coreerrors.CtxPattern, pattern,
			)
		}
	}
	includeRoot := false
	for _, pattern := range patterns {
		if pattern == "." {
			includeRoot = true
		}
	}
	for dir := range dirs {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, dir); ok {
				selected = append(selected, dir)
				break
			}
		}
	}
	sort.Strings(selected)
	if includeRoot {
		selected = append([]string{"."}, selected...)
	}
	return selected, nil
}

// Roots returns the module roots in resolution order.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Resolve maps one import edge to an indexed path or an external node.
func (r *Resolver) Resolve(edge parser.ImportEdge) Resolution {
	language := parser.LanguageForPath(edge.File)
	var target string
	switch parser.LanguageFamily(language) {
	case "python":
		targets := r.resolvePython(edge)
		if len(targets) == 0 {
			break
		}
		res := Resolution{Target: targets[0]}
		if len(targets) > 1 {
			res.Also = targets[1:]
		}
		return res
	case "javascript":
		target = r.resolveJavaScript(edge)
	default:
		target = r.resolveGeneric(edge, path.Ext(edge.File))
	}
	if target == "" {
		return Resolution{Target: ExternalID(edge.Specifier), External: true}
	}
	return Resolution{Target: target}
}

// resolvePython returns the module file, or else one target per imported
// name that is a submodule, or else the package init.
func (r *Resolver) resolvePython(edge parser.ImportEdge) []string {
	module := strings.TrimLeft(edge.Specifier, ".")
	modulePath := strings.ReplaceAll(module, ".", "/")

	var bases []string
	if edge.Relative || edge.Level > 0 {
		base := path.Dir(edge.File)
		for i := 1; i < edge.Level; i++ {
			if base == "." {
				return nil
			}
			base = path.Dir(base)
		}
		bases = []string{base}
	} else {
		bases = r.roots
	}

	for _, base := range bases {
		dir := join(base, modulePath)
		if modulePath != "" {
			if found := r.first(dir+".py", dir+".pyi"); found != "" {
				return []string{found}
			}
		}
		var submodules []string
		seen := make(map[string]bool)
		for _, name := range edge.Names {
			if name == "*" {
				continue
			}
			sub := join(dir, strings.ReplaceAll(name, ".", "/"))
			if found := r.first(sub+".py", sub+"/__init__.py", sub+".pyi"); found != "" && !seen[found] {
				seen[found] = true
				submodules = append(submodules, found)
			}
		}
		if len(submodules) > 0 {
			return submodules
		}
		if found := r.first(join(dir, "__init__.py"), join(dir, "__init__.pyi")); found != "" {
			return []string{found}
		}
	}
	return nil
}

func (r *Resolver) resolveJavaScript(edge parser.ImportEdge) string {
	spec := strings.TrimPrefix(edge.Specifier, "node:")
	if isRelative(spec) {
		target := path.Join(path.Dir(edge.File), spec)
		if escapes(target) {
			return ""
		}
		return r.jsCandidates(target)
	}
	for _, root := range r.roots {
		if found := r.jsCandidates(join(root, spec)); found != "" {
			return found
		}
	}
	return ""
}

func (r *Resolver) jsCandidates(base string) string {
	candidates := []string{base}
	for _, ext := range jsExtensions {
		candidates = append(candidates, base+ext)
	}
	// ESM TypeScript imports name the emitted .js file.
	switch path.Ext(base) {
	case ".js", ".jsx", ".mjs", ".cjs":
		stem := stripExt(base)
		candidates = append(candidates, stem+".ts", stem+".tsx")
	}
	for _, ext := range jsExtensions {
		candidates = append(candidates, base+"/index"+ext)
	}
	return r.first(candidates...)
}

func (r *Resolver) resolveGeneric(edge parser.ImportEdge, ownerExt string) string {
	spec := edge.Specifier
	if strings.Contains(spec, "::") {
		spec = strings.ReplaceAll(spec, "::", "/")
		spec = strings.TrimPrefix(spec, "crate/")
	}

	variants := []string{spec}
	if !strings.Contains(spec, "/") && strings.Count(spec, ".") > 0 && parser.LanguageForPath(spec) == "" {
		variants = append(variants, strings.ReplaceAll(spec, ".", "/"))
	}

	ownerDir := path.Dir(edge.File)
	var bases []string
	if edge.Relative || isRelative(spec) {
		bases = []string{ownerDir}
	} else {
		bases = append([]string{ownerDir}, r.roots...)
	}

	for _, variant := range variants {
		for _, base := range bases {
			target := path.Join(base, variant)
			if escapes(target) {
				continue
			}
			if found := r.first(target, target+ownerExt); found != "" {
				return found
			}
		}
	}
	for _, variant := range variants {
		for _, base := range bases {
			target := path.Join(base, variant)
			if escapes(target) {
				continue
			}
			if matches := r.stems[stripExt(target)]; len(matches) > 0 {
				return matches[0]
			}
		}
	}
	return ""
}

func (r *Resolver) first(candidates ...string) string {
	for _, c := range candidates {
		c = path.Clean(c)
		if r.paths[c] {
			return c
		}
	}
	return ""
}

func join(base, rel string) string {
	if base == "." || base == "" {
		if rel == "" {
			return "."
		}
		return rel
	}
	if rel == "" {
		return base
	}
	return base + "/" + rel
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

func escapes(p string) bool {
	return p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/")
}

func stripExt(p string) string {
	if strings.HasSuffix(p, ".d.ts") {
		return strings.TrimSuffix(p, ".d.ts")
	}
	return strings.TrimSuffix(p, path.Ext(p))
}
