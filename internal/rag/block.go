package rag

import "strings"

// Section is one labeled contribution to the context block.
type Section struct {
	Label string
	Text  string
}

// Block is the assembled context, ordered by source priority. The
// order is fixed at assembly time; sections are never re-ranked across
// sources.
type Block struct {
	Sections []Section
}

// Empty reports whether no source contributed anything.
func (b Block) Empty() bool {
	return len(b.Sections) == 0
}

// Render concatenates the sections, each under its labeled divider,
// joined with blank lines.
func (b Block) Render() string {
	if len(b.Sections) == 0 {
		return ""
	}

	parts := make([]string, 0, len(b.Sections))
	for _, s := range b.Sections {
		parts = append(parts, "=== "+s.Label+" ===\n"+s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Citation is a raw snippet handed back alongside the answer so the
// caller can show where retrieved context came from.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}
