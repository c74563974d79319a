package emit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
	"github.com/tinovyatkin/serpen/internal/rewrite"
	"github.com/tinovyatkin/serpen/internal/trim"
)

func renderFiles(t *testing.T, files map[string]string, entry string) []byte {
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

	res, err := rewrite.Rewrite(g, cycles.Analyze(g), rewrite.Options{
		PreserveComments:  true,
		PreserveTypeHints: true,
	})
	require.NoError(t, err)

	externals := trim.Externals(g, res)
	entryName := g.Node(g.Entry()).Module.Name

	return Bundle(res, externals, Options{EntryName: entryName, Shebang: true})
}

var scenarioFiles = map[string]string{
	"main.py": "import os\nfrom helpers import greet\nfrom user import User\n\n" +
		"def run():\n    print(greet(User(os.getlogin())))\n\n" +
		"if __name__ == \"__main__\":\n    run()\n",
	"helpers.py": "def greet(user):\n    return \"hello \" + user.name\n",
	"user.py":    "class User:\n    def __init__(self, name):\n        self.name = name\n",
}

func TestBundle_Layout(t *testing.T) {
	t.Parallel()

	code := string(renderFiles(t, scenarioFiles, "main.py"))

	assert.True(t, strings.HasPrefix(code, "#!/usr/bin/env python3\n"))
	assert.Contains(t, code, "# Bundled from module 'main'.")
	assert.Contains(t, code, "import os\n")
	assert.Contains(t, code, "# --- helpers ---")
	assert.Contains(t, code, "# --- user ---")
	assert.Contains(t, code, "# --- main ---")

	// Dependencies precede the entry; the main guard closes the file.
	assert.Less(t, strings.Index(code, "# --- helpers ---"), strings.Index(code, "# --- main ---"))
	assert.Less(t, strings.Index(code, "# --- user ---"), strings.Index(code, "# --- main ---"))

	guard := strings.Index(code, "if __name__")
	require.Positive(t, guard)
	assert.Equal(t, "if __name__ == \"__main__\":\n    run()\n", code[guard:])

	// No first-party import statements survive.
	assert.NotContains(t, code, "from helpers")
	assert.NotContains(t, code, "from user")
}

func TestBundle_Deterministic(t *testing.T) {
	t.Parallel()

	first := renderFiles(t, scenarioFiles, "main.py")
	second := renderFiles(t, scenarioFiles, "main.py")

	if !assert.Equal(t, string(first), string(second)) {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(string(first), string(second), false)
		t.Log(dmp.DiffPrettyText(diffs))
	}
}

func TestBundle_FutureImportFirst(t *testing.T) {
	t.Parallel()

	code := string(renderFiles(t, map[string]string{
		"main.py":    "from __future__ import annotations\nimport sys\nfrom helpers import greet\n\ngreet(sys.argv)\n",
		"helpers.py": "def greet(args):\n    return args\n",
	}, "main.py"))

	future := strings.Index(code, "from __future__ import annotations")
	external := strings.Index(code, "import sys")

	require.Positive(t, future)
	require.Positive(t, external)
	assert.Less(t, future, external)
}

func TestBundle_FromImportsMerged(t *testing.T) {
	t.Parallel()

	code := string(renderFiles(t, map[string]string{
		"main.py":    "from os.path import join\nfrom helpers import locate\n\nprint(locate(join(\"a\", \"b\")))\n",
		"helpers.py": "from os.path import basename\n\ndef locate(p):\n    return basename(p)\n",
	}, "main.py"))

	assert.Contains(t, code, "from os.path import basename, join\n")
}

func TestBundle_EmptyFragmentSkipped(t *testing.T) {
	t.Parallel()

	code := string(renderFiles(t, map[string]string{
		"main.py":         "from pkg import util\n\nprint(util.clamp(9))\n",
		"pkg/__init__.py": "",
		"pkg/util.py":     "def clamp(x):\n    return x\n",
	}, "main.py"))

	// The empty package __init__ contributes no section.
	assert.NotContains(t, code, "# --- pkg ---")
	assert.Contains(t, code, "# --- pkg.util ---")
}

func TestRenderExternals_Forms(t *testing.T) {
	t.Parallel()

	externals := []rewrite.ExternalImport{
		{Kind: pysrc.ImportDirect, Module: "collections"},
		{Kind: pysrc.ImportDirect, Module: "numpy", Alias: "np"},
		{Kind: pysrc.ImportFrom, Module: "typing", Name: "Any"},
		{Kind: pysrc.ImportFrom, Module: "typing", Name: "Optional", Alias: "Opt"},
	}

	block := renderExternals(externals)

	assert.Equal(t,
		"import collections\nimport numpy as np\nfrom typing import Any, Optional as Opt\n",
		block)
}
