package trim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
	"github.com/tinovyatkin/serpen/internal/rewrite"
)

func rewriteFiles(t *testing.T, files map[string]string, entry string) (*graph.Graph, *rewrite.Result) {
	t.Helper()

	return rewriteFilesOpts(t, files, entry, rewrite.Options{
		PreserveComments:  true,
		PreserveTypeHints: true,
	})
}

func rewriteFilesOpts(t *testing.T, files map[string]string, entry string, opts rewrite.Options) (*graph.Graph, *rewrite.Result) {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := &config.Config{SourceDirs: []string{"."}, TargetVersion: "3.12"}

	resolver, err := resolve.NewResolver(cfg, root)
	require.NoError(t, err)

	g, err := graph.NewBuilder(pysrc.NewParser(), resolver, 2, nil).
		Build(t.Context(), filepath.Join(root, entry))
	require.NoError(t, err)

	res, err := rewrite.Rewrite(g, cycles.Analyze(g), opts)
	require.NoError(t, err)

	return g, res
}

func externalModules(externals []rewrite.ExternalImport) []string {
	modules := make([]string, len(externals))
	for i, ext := range externals {
		modules[i] = ext.Module
	}

	return modules
}

func TestExternals_UnusedFromImportDropped(t *testing.T) {
	t.Parallel()

	// helpers imports List but only the entry-reachable code survives; after
	// inlining, nothing references List.
	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "from helpers import greet\n\ngreet()\n",
		"helpers.py": "from typing import List\nimport sys\n\ndef greet():\n    return sys.platform\n",
	}, "main.py")

	assert.Equal(t, []string{"sys", "typing"}, externalModules(res.Externals))

	kept := Externals(g, res)
	assert.Equal(t, []string{"sys"}, externalModules(kept))
}

func TestExternals_BareImportNeverDropped(t *testing.T) {
	t.Parallel()

	// A bare import may run side effects at import time.
	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "import logging\nfrom helpers import greet\n\ngreet()\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py")

	kept := Externals(g, res)
	assert.Equal(t, []string{"logging"}, externalModules(kept))
}

func TestExternals_AliasedImportDroppedWhenUnused(t *testing.T) {
	t.Parallel()

	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "import json as j\nfrom helpers import greet\n\ngreet()\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py")

	kept := Externals(g, res)
	assert.Empty(t, kept)
}

func TestExternals_UsedAliasKept(t *testing.T) {
	t.Parallel()

	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "import json as j\nfrom helpers import greet\n\ngreet(j.dumps({}))\n",
		"helpers.py": "def greet(s):\n    return s\n",
	}, "main.py")

	kept := Externals(g, res)
	require.Len(t, kept, 1)
	assert.Equal(t, "json", kept[0].Module)
	assert.Equal(t, "j", kept[0].Alias)
}

func TestExternals_AllListStringCountsAsUse(t *testing.T) {
	t.Parallel()

	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "from os import getcwd\nfrom helpers import greet\n\n__all__ = [\"getcwd\", \"greet\"]\n\ngreet()\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py")

	kept := Externals(g, res)
	require.Len(t, kept, 1)
	assert.Equal(t, "getcwd", kept[0].Name)
}

func TestExternals_AnnotationOnlyUseDroppedWhenStripped(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"main.py":    "from helpers import greet\n\ngreet()\n",
		"helpers.py": "from typing import List\n\ndef greet() -> List:\n    return []\n",
	}

	// With annotations preserved the import is genuinely used.
	g, res := rewriteFiles(t, files, "main.py")
	assert.Equal(t, []string{"typing"}, externalModules(Externals(g, res)))

	// Stripping the annotations removes the only reference.
	g, res = rewriteFilesOpts(t, files, "main.py", rewrite.Options{PreserveComments: true})
	assert.Empty(t, Externals(g, res))
}

func TestExternals_ReExportedExternalSurvives(t *testing.T) {
	t.Parallel()

	// helpers re-exports an external symbol; the entry references it through
	// the member binding, which falls through to the hoisted import.
	g, res := rewriteFiles(t, map[string]string{
		"main.py":    "from helpers import dumps\n\ndumps({})\n",
		"helpers.py": "from json import dumps\n",
	}, "main.py")

	kept := Externals(g, res)
	require.Len(t, kept, 1)
	assert.Equal(t, "json", kept[0].Module)
	assert.Equal(t, "dumps", kept[0].Name)
}
