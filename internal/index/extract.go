package index

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/parity/internal/ir"
)

// fileScan is the symbol-specific extraction of one file. It depends only on
// the file content, so it can be cached by content digest.
type fileScan struct {
	sites      []ir.UsageSite
	definition bool
	references int
}

// extract finds occurrences of ident in content.
func extract(ctx context.Context, lang Language, path string, content []byte, ident string) (fileScan, error) {
	if lang == LangText {
		return extractText(path, content, ident), nil
	}

	tree, err := parse(ctx, lang, content)
	if err != nil {
		return fileScan{}, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if se := firstSyntaxError(root, content); se != nil {
		return fileScan{}, se
	}

	g := grammars[lang]
	acc := newSiteAccumulator(path)
	var definition bool

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if g.identifiers[n.Type()] && n.Content(content) == ident {
			def, container := resolve(g, n, content)
			definition = definition || def
			acc.add(container, int(n.StartPoint().Row)+1)
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}

	sites, refs := acc.sites()
	return fileScan{sites: sites, definition: definition, references: refs}, nil
}

// resolve reports whether the identifier node names a definition, and the
// name of its innermost enclosing definition. A definition's own name is
// attributed to the definition around it.
func resolve(g grammar, n *sitter.Node, content []byte) (bool, string) {
	isDef := false
	p := n.Parent()
	if p != nil && g.definitions[p.Type()] && sameNode(p.ChildByFieldName("name"), n) {
		isDef = true
		p = p.Parent()
	}
	for ; p != nil; p = p.Parent() {
		if !g.definitions[p.Type()] {
			continue
		}
		if name := p.ChildByFieldName("name"); name != nil {
			return isDef, name.Content(content)
		}
	}
	return isDef, ""
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

var textDefinition = `(?m)^\s*(?:async\s+)?(?:def|class|func|function)\s+%s\b`

func extractText(path string, content []byte, ident string) fileScan {
	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(ident) + `\b`)
	def := regexp.MustCompile(fmt.Sprintf(textDefinition, regexp.QuoteMeta(ident)))

	acc := newSiteAccumulator(path)
	line := 1
	start := 0
	for i := 0; i <= len(content); i++ {
		if i < len(content) && content[i] != '\n' {
			continue
		}
		if word.Match(content[start:i]) {
			acc.add("", line)
		}
		line++
		start = i + 1
	}

	sites, refs := acc.sites()
	return fileScan{sites: sites, definition: def.Match(content), references: refs}
}

// siteAccumulator groups line numbers by container.
type siteAccumulator struct {
	path  string
	lines map[string][]int
}

func newSiteAccumulator(path string) *siteAccumulator {
	return &siteAccumulator{path: path, lines: make(map[string][]int)}
}

func (a *siteAccumulator) add(container string, line int) {
	a.lines[container] = append(a.lines[container], line)
}

// sites returns one UsageSite per container, ordered by first line then
// container name, and the number of distinct referencing lines.
func (a *siteAccumulator) sites() ([]ir.UsageSite, int) {
	out := make([]ir.UsageSite, 0, len(a.lines))
	all := make(map[int]bool)
	for container, lines := range a.lines {
		slices.Sort(lines)
		lines = slices.Compact(lines)
		for _, l := range lines {
			all[l] = true
		}
		out = append(out, ir.UsageSite{Path: a.path, Container: container, Lines: lines})
	}
	slices.SortFunc(out, compareSites)
	return out, len(all)
}

func compareSites(x, y ir.UsageSite) int {
	if x.Path != y.Path {
		if x.Path < y.Path {
			return -1
		}
		return 1
	}
	if x.Lines[0] != y.Lines[0] {
		return x.Lines[0] - y.Lines[0]
	}
	if x.Container < y.Container {
		return -1
	}
	if x.Container > y.Container {
		return 1
	}
	return 0
}
