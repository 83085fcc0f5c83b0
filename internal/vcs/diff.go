package vcs

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/roach88/parity/internal/ir"
)

// UnifiedDiff renders the change from old to new as a git-style unified
// diff with three lines of context. It returns "" when the digests match.
func UnifiedDiff(old, new ir.SourceState) (string, error) {
	if old.Digest == new.Digest {
		return "", nil
	}
	path := new.Path
	if path == "" {
		path = old.Path
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old.Content),
		B:        difflib.SplitLines(new.Content),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
}

// Stat summarizes a patch.
type Stat struct {
	Files      int `json:"files"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

func (s Stat) String() string {
	return fmt.Sprintf("%d file(s) changed, %d insertion(s)(+), %d deletion(s)(-)", s.Files, s.Insertions, s.Deletions)
}

// DiffStat counts the files and lines touched by a unified diff.
func DiffStat(patch string) (Stat, error) {
	if patch == "" {
		return Stat{}, nil
	}
	files, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return Stat{}, fmt.Errorf("vcs: parse diff: %w", err)
	}
	var st Stat
	for _, f := range files {
		s := f.Stat()
		st.Files++
		st.Insertions += int(s.Added + s.Changed)
		st.Deletions += int(s.Deleted + s.Changed)
	}
	return st, nil
}
