package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	coreerrors "codeindex/internal/core/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

const DefaultMaxFileBytes int64 = 2 << 20

// Extractor turns one file's content into a Fact Record. Implementations never
// panic outward and never return an error: failures are recorded on the
// record's status.
type Extractor interface {
	Extract(path string, content []byte) FactRecord
}

type Options struct {
	MaxFileBytes int64
	CacheEntries int // 0 disables the cache
}

type cacheKey struct {
	path string
	hash string
}

// Parser dispatches files to extractors by extension and memoises results by
// content hash.
type Parser struct {
	loader       *GrammarLoader
	extractors   map[extractorKind]Extractor
	maxFileBytes int64
	cache        *lru.Cache[cacheKey, FactRecord]
}

func NewParser(opts Options) (*Parser, error) {
	loader := NewGrammarLoader()
	p := &Parser{
		loader:       loader,
		maxFileBytes: opts.MaxFileBytes,
		extractors:   make(map[extractorKind]Extractor),
	}
	p.RegisterExtractor("python", NewPythonExtractor(loader))
	p.RegisterExtractor("javascript", NewJavaScriptExtractor(loader))
	p.RegisterExtractor("go", NewGenericExtractor(loader))
	if p.maxFileBytes <= 0 {
		p.maxFileBytes = DefaultMaxFileBytes
	}
	if opts.CacheEntries > 0 {
		cache, err := lru.New[cacheKey, FactRecord](opts.CacheEntries)
		if err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.CodeConfig, "create extraction cache")
		}
		p.cache = cache
	}
	return p, nil
}

// RegisterExtractor overrides the extractor for a language's dispatch kind.
func (p *Parser) RegisterExtractor(language string, e Extractor) {
	spec, ok := languages[language]
	if !ok {
		return
	}
	p.extractors[spec.extractor] = e
}

func (p *Parser) IsSupportedPath(path string) bool {
	return LanguageForPath(path) != ""
}

// ParsePath reads root/rel and extracts it. IO problems, oversized files and
// non UTF-8 content produce a skipped record.
func (p *Parser) ParsePath(root, rel string) FactRecord {
	language := LanguageForPath(rel)
	abs := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil {
		return skippedRecord(rel, language, describeIOError(err))
	}
	if info.Size() > p.maxFileBytes {
		rec := skippedRecord(rel, language, fmt.Sprintf("file exceeds %d bytes", p.maxFileBytes))
		rec.File.Size = info.Size()
		rec.File.ModTime = info.ModTime().UTC()
		if hash, err := HashFile(abs); err == nil {
			rec.File.Hash = hash
		}
		return rec
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return skippedRecord(rel, language, describeIOError(err))
	}
	rec := p.ParseContent(rel, content)
	rec.File.ModTime = info.ModTime().UTC()
	return rec
}

// ParseContent extracts already-read content for the file at rel.
func (p *Parser) ParseContent(rel string, content []byte) (record FactRecord) {
	language := LanguageForPath(rel)
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	size := int64(len(content))

	if size > p.maxFileBytes {
		rec := skippedRecord(rel, language, fmt.Sprintf("file exceeds %d bytes", p.maxFileBytes))
		rec.File.Hash, rec.File.Size = hash, size
		return rec
	}
	if !utf8.Valid(content) {
		rec := skippedRecord(rel, language, "content is not valid UTF-8")
		rec.File.Hash, rec.File.Size = hash, size
		return rec
	}

	key := cacheKey{path: rel, hash: hash}
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			return cached
		}
	}

	extractor := p.extractors[languages[language].extractor]
	if language == "" || extractor == nil {
		rec := skippedRecord(rel, language, "no extractor for file type")
		rec.File.Hash, rec.File.Size = hash, size
		return rec
	}

	defer func() {
		if r := recover(); r != nil {
			record = FactRecord{
				File:       SourceFile{Path: rel, Language: language, Hash: hash, Size: size},
				Confidence: ConfidenceLow,
				Status:     Failed(fmt.Sprintf("extractor panic: %v", r)),
			}
		}
	}()

	record = extractor.Extract(rel, content)
	record.File.Path = rel
	record.File.Language = language
	record.File.Hash = hash
	record.File.Size = size
	record.File.LinesOfCode = countLinesOfCode(content, language)

	if p.cache != nil {
		p.cache.Add(key, record)
	}
	return record
}

// HashFile streams a file through sha256 and returns the hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func skippedRecord(rel, language, reason string) FactRecord {
	confidence := ConfidenceLow
	if kind := languages[language].extractor; kind != kindGeneric {
		confidence = ConfidenceHigh
	}
	return FactRecord{
		File:       SourceFile{Path: rel, Language: language},
		Confidence: confidence,
		Status:     Skipped(reason),
	}
}

func describeIOError(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "file not found"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	default:
		return coreerrors.Wrap(err, coreerrors.CodeIO, "read failed").Error()
	}
}

// syntaxFailure converts a tree with error nodes into a failed record with no
// symbols or imports.
func syntaxFailure(ctx *ExtractionContext, root *sitter.Node) (FactRecord, bool) {
	if root == nil || !root.HasError() {
		return FactRecord{}, false
	}
	reason := "syntax error"
	if bad := firstSyntaxError(root); bad != nil {
		reason = syntaxErrorReason(bad)
	}
	rec := *ctx.Record
	rec.Symbols = nil
	rec.Imports = nil
	rec.Exports = nil
	rec.HasModuleDocstring = false
	rec.Status = Failed(reason)
	return rec, true
}

// recoverExtraction turns a panic inside an extractor into a failed record.
func recoverExtraction(record *FactRecord, ctx *ExtractionContext) {
	r := recover()
	if r == nil {
		return
	}
	rec := *ctx.Record
	rec.Symbols = nil
	rec.Imports = nil
	rec.Exports = nil
	rec.HasModuleDocstring = false
	rec.Status = Failed(fmt.Sprintf("extractor panic: %v", r))
	*record = rec
}
