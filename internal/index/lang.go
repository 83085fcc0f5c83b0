package index

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Language selects how a file is scanned.
type Language string

const (
	LangGo     Language = "go"
	LangPython Language = "python"
	LangJS     Language = "javascript"

	// LangText matches whole-word occurrences with a regular expression.
	// It is used for extensions without a grammar.
	LangText Language = "text"
)

// grammar describes the syntax nodes the index cares about for one language.
type grammar struct {
	language    func() *sitter.Language
	identifiers map[string]bool
	definitions map[string]bool
}

var grammars = map[Language]grammar{
	LangGo: {
		language:    golang.GetLanguage,
		identifiers: set("identifier", "field_identifier", "type_identifier"),
		definitions: set("function_declaration", "method_declaration", "type_spec"),
	},
	LangPython: {
		language:    python.GetLanguage,
		identifiers: set("identifier"),
		definitions: set("function_definition", "class_definition"),
	},
	LangJS: {
		language:    javascript.GetLanguage,
		identifiers: set("identifier", "property_identifier", "shorthand_property_identifier"),
		definitions: set("function_declaration", "generator_function_declaration", "class_declaration", "method_definition"),
	},
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// ParseLanguage converts a user-supplied name into a Language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "go", "golang":
		return LangGo, nil
	case "python", "py":
		return LangPython, nil
	case "javascript", "js":
		return LangJS, nil
	case "text":
		return LangText, nil
	default:
		return "", fmt.Errorf("unknown language %q (want go, python, javascript or text)", s)
	}
}

// DetectLanguage maps a file extension to a grammar-backed language.
// It returns "" for files without one.
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo
	case ".py", ".pyi":
		return LangPython
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJS
	default:
		return ""
	}
}

// IsTestFile reports whether path follows the test naming convention of lang.
// Paths use forward slashes.
func IsTestFile(lang Language, path string) bool {
	base := filepath.Base(path)
	if lang == LangGo {
		return strings.HasSuffix(base, "_test.go")
	}
	if lang == LangJS && (strings.Contains(base, ".test.") || strings.Contains(base, ".spec.")) {
		return true
	}
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_test") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if seg == "tests" || seg == "test" || seg == "__tests__" {
			return true
		}
	}
	return false
}

// SyntaxError reports the first parse error in a source text.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// ParseCheck parses content with the grammar of lang and returns a
// *SyntaxError for the first error node. LangText always passes.
func ParseCheck(ctx context.Context, lang Language, content []byte) error {
	if lang == LangText {
		return nil
	}
	tree, err := parse(ctx, lang, content)
	if err != nil {
		return err
	}
	defer tree.Close()

	if se := firstSyntaxError(tree.RootNode(), content); se != nil {
		return se
	}
	return nil
}

func parse(ctx context.Context, lang Language, content []byte) (*sitter.Tree, error) {
	g, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", lang)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return tree, nil
}

// firstSyntaxError walks the tree in document order and reports the first
// ERROR or MISSING node, or nil when the tree is clean.
func firstSyntaxError(root *sitter.Node, content []byte) *SyntaxError {
	if !root.HasError() {
		return nil
	}
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsError() || n.IsMissing() {
			msg := "unexpected input"
			if n.IsMissing() {
				msg = "missing " + n.Type()
			} else if text := n.Content(content); text != "" && len(text) < 60 {
				msg = fmt.Sprintf("unexpected %q", text)
			}
			p := n.StartPoint()
			return &SyntaxError{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Message: msg}
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	// HasError without a locatable node.
	return &SyntaxError{Line: 1, Column: 1, Message: "unparseable input"}
}
