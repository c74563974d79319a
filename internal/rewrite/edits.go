package rewrite

import (
	"sort"
	"strings"

	"github.com/tinovyatkin/serpen/internal/pysrc"
)

// edit is one byte-range replacement inside a statement's source text. Spans
// are file-absolute; application rebases them against the statement start.
type edit struct {
	span pysrc.Span
	text string
	// rank orders competing edits: lower rank wins on overlap. Attribute
	// rewrites outrank the identifier rewrites nested inside their spans.
	rank int
}

// applyEdits returns text with all non-overlapping edits applied. Edits are
// processed by rank, then by start offset with longer spans first; an edit
// overlapping an already accepted one is dropped, which is exactly the
// behavior wanted for identifier edits inside rewritten attribute chains.
func applyEdits(text string, base uint, edits []edit) string {
	if len(edits) == 0 {
		return text
	}

	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].rank != edits[j].rank {
			return edits[i].rank < edits[j].rank
		}

		if edits[i].span.Start != edits[j].span.Start {
			return edits[i].span.Start < edits[j].span.Start
		}

		return edits[i].span.End > edits[j].span.End
	})

	accepted := edits[:0]

	for _, e := range edits {
		if e.span.Start < base || uint(len(text)) < e.span.End-base {
			continue
		}

		conflict := false

		for _, kept := range accepted {
			if e.span.Start < kept.span.End && kept.span.Start < e.span.End {
				conflict = true
				break
			}
		}

		if !conflict {
			accepted = append(accepted, e)
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].span.Start < accepted[j].span.Start
	})

	var sb strings.Builder

	cursor := base
	for _, e := range accepted {
		sb.WriteString(text[cursor-base : e.span.Start-base])
		sb.WriteString(e.text)
		cursor = e.span.End
	}

	sb.WriteString(text[cursor-base:])

	return sb.String()
}
