// Package index builds the mapping from a target symbol to every file and
// line that references it.
//
// Scans are deterministic: files are visited in lexicographic path order and
// results are re-sorted after the parallel extraction phase, so two scans of
// an unchanged tree produce identical output.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/parity/internal/ir"
)

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{
	".git", "vendor", "node_modules", ".venv", "__pycache__", ".pytest_cache", "artifacts",
}

// Default tuning values.
const (
	DefaultConcurrency = 8
	DefaultCacheSize   = 4096
)

// Options configures an Index.
type Options struct {
	// Languages restricts the grammars scanned. Empty means go and python.
	// Listing only LangText scans every grammar-backed file by whole word.
	Languages []Language

	// TextExtensions are scanned with the whole-word fallback, e.g. ".rb".
	// A listed extension whose grammar is disabled falls back as well.
	TextExtensions []string

	// SkipDirs are directory base names added to DefaultSkipDirs.
	SkipDirs []string

	// DefinitionFile is a root-relative path always flagged as the
	// definition, whether or not a definition node was found in it.
	DefinitionFile string

	Concurrency int
	CacheSize   int
}

// FileResult is the scan outcome for one file.
type FileResult struct {
	Path       string         `json:"path"`
	Language   Language       `json:"language"`
	Sites      []ir.UsageSite `json:"sites"`
	References int            `json:"references"`
	Definition bool           `json:"definition"`
	Test       bool           `json:"test"`
}

// Result is the output of one scan. Files only contains files that
// reference the symbol, in path order.
type Result struct {
	Root     string           `json:"root"`
	Symbol   ir.Symbol        `json:"symbol"`
	Files    []FileResult     `json:"files"`
	Warnings []ir.ScanWarning `json:"warnings"`
	Scanned  int              `json:"scanned"`
}

// Sites returns every usage site in deterministic order.
func (r *Result) Sites() []ir.UsageSite {
	var out []ir.UsageSite
	for _, f := range r.Files {
		out = append(out, f.Sites...)
	}
	return out
}

// Definitions returns the paths of files flagged as defining the symbol.
func (r *Result) Definitions() []string {
	var out []string
	for _, f := range r.Files {
		if f.Definition {
			out = append(out, f.Path)
		}
	}
	return out
}

// Empty reports whether the symbol was found nowhere.
func (r *Result) Empty() bool {
	return len(r.Files) == 0
}

type cacheKey struct {
	path   string
	digest string
	ident  string
}

// Index scans codebases for symbol usages. It is safe for concurrent use.
type Index struct {
	opts      Options
	languages map[Language]bool
	textExts  map[string]bool
	skip      map[string]bool
	cache     *lru.Cache[cacheKey, fileScan]
	logger    *slog.Logger
}

// New creates an Index. A nil logger discards output.
func New(opts Options, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	langs := opts.Languages
	if len(langs) == 0 {
		langs = []Language{LangGo, LangPython}
	}
	languages := make(map[Language]bool, len(langs))
	for _, l := range langs {
		if _, ok := grammars[l]; !ok && l != LangText {
			return nil, fmt.Errorf("index: unsupported language %q", l)
		}
		languages[l] = true
	}

	textExts := make(map[string]bool, len(opts.TextExtensions))
	for _, ext := range opts.TextExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		textExts[strings.ToLower(ext)] = true
	}

	cache, err := lru.New[cacheKey, fileScan](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("index: create cache: %w", err)
	}

	return &Index{
		opts:      opts,
		languages: languages,
		textExts:  textExts,
		skip:      set(append(slices.Clone(DefaultSkipDirs), opts.SkipDirs...)...),
		cache:     cache,
		logger:    logger,
	}, nil
}

// languageFor picks the scanning strategy for a path, or "" to ignore it.
// A grammar-backed file whose language is disabled falls back to LangText
// when that is enabled or its extension is listed in TextExtensions.
func (ix *Index) languageFor(path string) Language {
	textExt := ix.textExts[strings.ToLower(filepath.Ext(path))]
	if lang := DetectLanguage(path); lang != "" {
		if ix.languages[lang] {
			return lang
		}
		if ix.languages[LangText] || textExt {
			return LangText
		}
		return ""
	}
	if textExt {
		return LangText
	}
	return ""
}

type candidate struct {
	rel  string
	abs  string
	lang Language
}

type slot struct {
	file    FileResult
	found   bool
	warning *ir.ScanWarning
}

// Scan walks root and records every occurrence of sym.
//
// Unreadable or unparseable files become ScanWarnings and are skipped.
// Scan only fails if root itself cannot be walked or ctx is cancelled.
func (ix *Index) Scan(ctx context.Context, root string, sym ir.Symbol) (*Result, error) {
	ident := identifier(sym.Name)
	if ident == "" {
		return nil, fmt.Errorf("index: empty symbol name")
	}

	files, walkWarnings, err := ix.walk(root)
	if err != nil {
		return nil, err
	}

	slots := make([]slot, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)
	for i, c := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = ix.scanFile(gctx, c, ident)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index: scan %s: %w", root, err)
	}

	res := &Result{
		Root:     root,
		Symbol:   sym,
		Files:    []FileResult{},
		Warnings: walkWarnings,
		Scanned:  len(files),
	}
	for _, s := range slots {
		if s.warning != nil {
			res.Warnings = append(res.Warnings, *s.warning)
			continue
		}
		if s.found {
			res.Files = append(res.Files, s.file)
		}
	}

	slices.SortFunc(res.Files, func(a, b FileResult) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(res.Warnings, func(a, b ir.ScanWarning) int { return strings.Compare(a.Path, b.Path) })

	ix.logger.Debug("scan complete",
		"root", root,
		"symbol", sym.String(),
		"scanned", res.Scanned,
		"matched", len(res.Files),
		"warnings", len(res.Warnings))
	return res, nil
}

// walk lists scannable files in lexicographic order. Unreadable
// subdirectories become warnings.
func (ix *Index) walk(root string) ([]candidate, []ir.ScanWarning, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("index: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("index: %s is not a directory", root)
	}

	var files []candidate
	var warnings []ir.ScanWarning
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			if path == root {
				return err
			}
			warnings = append(warnings, ir.ScanWarning{Path: rel, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && ix.skip[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if lang := ix.languageFor(rel); lang != "" {
			files = append(files, candidate{rel: rel, abs: path, lang: lang})
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("index: walk %s: %w", root, err)
	}
	return files, warnings, nil
}

func (ix *Index) scanFile(ctx context.Context, c candidate, ident string) slot {
	content, err := os.ReadFile(c.abs)
	if err != nil {
		ix.logger.Warn("skipping unreadable file", "path", c.rel, "error", err)
		return slot{warning: &ir.ScanWarning{Path: c.rel, Reason: err.Error()}}
	}

	key := cacheKey{path: c.rel, digest: ir.SourceDigest(string(content)), ident: ident}
	scan, ok := ix.cache.Get(key)
	if !ok {
		scan, err = extract(ctx, c.lang, c.rel, content, ident)
		if err != nil {
			var se *SyntaxError
			if !errors.As(err, &se) && ctx.Err() != nil {
				return slot{}
			}
			ix.logger.Warn("skipping unparseable file", "path", c.rel, "error", err)
			return slot{warning: &ir.ScanWarning{Path: c.rel, Reason: err.Error()}}
		}
		ix.cache.Add(key, scan)
	}

	definition := scan.definition
	if ix.opts.DefinitionFile != "" && filepath.ToSlash(filepath.Clean(ix.opts.DefinitionFile)) == c.rel {
		definition = true
	}
	if len(scan.sites) == 0 {
		return slot{}
	}

	sites := make([]ir.UsageSite, len(scan.sites))
	for i, s := range scan.sites {
		sites[i] = ir.UsageSite{Path: s.Path, Container: s.Container, Lines: slices.Clone(s.Lines)}
	}
	return slot{
		found: true,
		file: FileResult{
			Path:       c.rel,
			Language:   c.lang,
			Sites:      sites,
			References: scan.references,
			Definition: definition,
			Test:       IsTestFile(c.lang, c.rel),
		},
	}
}

// identifier returns the bare name to match; "Type.Method" matches "Method".
func identifier(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
