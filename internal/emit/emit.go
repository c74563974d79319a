// Package emit renders the rewritten fragments into the final single-file
// bundle. Output is a pure function of its inputs: identical sources always
// produce byte-identical bundles.
package emit

import (
	"sort"
	"strings"

	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/rewrite"
)

// Options controls the bundle prologue.
type Options struct {
	// EntryName is the dotted name of the entry module, for the header.
	EntryName string
	// Shebang prepends `#!/usr/bin/env python3` when set.
	Shebang bool
}

// Bundle renders the final program. externals is the (possibly trimmed)
// hoisted import block; it must already be in sorted order.
func Bundle(res *rewrite.Result, externals []rewrite.ExternalImport, opts Options) []byte {
	var sb strings.Builder

	if opts.Shebang {
		sb.WriteString("#!/usr/bin/env python3\n")
	}

	sb.WriteString("# Bundled from module '" + opts.EntryName + "'. Do not edit;\n")
	sb.WriteString("# regenerate from the original sources instead.\n")

	if len(res.Futures) > 0 {
		sb.WriteString("\nfrom __future__ import " + strings.Join(res.Futures, ", ") + "\n")
	}

	if block := renderExternals(externals); block != "" {
		sb.WriteString("\n" + block)
	}

	for _, fragment := range res.Fragments {
		if len(fragment.Blocks) == 0 {
			continue
		}

		sb.WriteString("\n\n# --- " + fragment.Name + " ---\n\n")
		sb.WriteString(strings.Join(fragment.Blocks, "\n\n"))
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

// renderExternals renders the hoisted import block: direct imports one per
// line, then from-imports with one line per target module and merged,
// deduplicated name lists. Input order is preserved for direct imports and
// for the first appearance of each from-import target.
func renderExternals(externals []rewrite.ExternalImport) string {
	var lines []string

	froms := make(map[string][]string)

	var fromOrder []string

	for _, ext := range externals {
		if ext.Kind == pysrc.ImportDirect {
			line := "import " + ext.Module
			if ext.Alias != "" {
				line += " as " + ext.Alias
			}

			lines = append(lines, line)

			continue
		}

		item := ext.Name
		if ext.Alias != "" {
			item += " as " + ext.Alias
		}

		if _, seen := froms[ext.Module]; !seen {
			fromOrder = append(fromOrder, ext.Module)
		}

		froms[ext.Module] = appendUnique(froms[ext.Module], item)
	}

	for _, module := range fromOrder {
		items := froms[module]
		sort.Strings(items)
		lines = append(lines, "from "+module+" import "+strings.Join(items, ", "))
	}

	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}

	return append(items, item)
}
