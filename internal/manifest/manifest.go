// Package manifest writes a requirements file naming the third-party
// packages the bundled program still imports at runtime.
package manifest

import (
	"fmt"
	"os"
	"strings"
)

// Render produces requirements.txt content from third-party root package
// names. Names are emitted unpinned, one per line, in the given order.
func Render(packages []string) []byte {
	if len(packages) == 0 {
		return nil
	}

	var sb strings.Builder

	sb.WriteString("# Third-party packages imported by the bundle.\n")

	for _, pkg := range packages {
		sb.WriteString(pkg)
		sb.WriteByte('\n')
	}

	return []byte(sb.String())
}

// Write renders the manifest to path, replacing any existing file. Writing
// is skipped entirely when there are no packages to record.
func Write(path string, packages []string) error {
	content := Render(packages)
	if content == nil {
		return nil
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write requirements %s: %w", path, err)
	}

	return nil
}
