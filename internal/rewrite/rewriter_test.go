package rewrite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
)

func buildAnalyzed(t *testing.T, files map[string]string, entry string) (*graph.Graph, *cycles.Analysis) {
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

	analysis := cycles.Analyze(g)
	require.False(t, analysis.HasUnresolvable())

	return g, analysis
}

func defaultOptions() Options {
	return Options{PreserveComments: true, PreserveTypeHints: true, PreserveModuleMetadata: false}
}

func mustRewrite(t *testing.T, files map[string]string, entry string, opts Options) (*graph.Graph, *Result) {
	t.Helper()

	g, analysis := buildAnalyzed(t, files, entry)

	res, err := Rewrite(g, analysis, opts)
	require.NoError(t, err)

	return g, res
}

func fragmentByName(t *testing.T, res *Result, name string) Fragment {
	t.Helper()

	for _, fragment := range res.Fragments {
		if fragment.Name == name {
			return fragment
		}
	}

	t.Fatalf("no fragment named %q", name)

	return Fragment{}
}

func fragmentText(f Fragment) string {
	return strings.Join(f.Blocks, "\n")
}

func TestRewrite_OrderDepsFirstEntryLast(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from helpers import greet\n\ngreet()\n",
		"helpers.py": "import util\n\ndef greet():\n    return util.shout()\n",
		"util.py":    "def shout():\n    return \"HI\"\n",
	}, "main.py", defaultOptions())

	require.Len(t, res.Fragments, 3)
	assert.Equal(t, "util", res.Fragments[0].Name)
	assert.Equal(t, "helpers", res.Fragments[1].Name)
	assert.Equal(t, "main", res.Fragments[2].Name)
}

func TestRewrite_NonEntryMainGuardDropped(t *testing.T) {
	t.Parallel()

	// helpers carries a demo block that never ran when imported; the bundle
	// must not execute it either.
	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from helpers import greet\n\ngreet()\n",
		"helpers.py": "def greet():\n    return \"hi\"\n\nif __name__ == \"__main__\":\n    print(greet())\n",
	}, "main.py", defaultOptions())

	text := fragmentText(fragmentByName(t, res, "helpers"))
	assert.Contains(t, text, "def greet():")
	assert.NotContains(t, text, "__main__")
	assert.NotContains(t, text, "print(greet())")
}

func TestRewrite_ImportStatementsDropped(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "import os\nfrom helpers import greet\n\ngreet()\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py", defaultOptions())

	for _, fragment := range res.Fragments {
		assert.NotContains(t, fragmentText(fragment), "import")
	}

	require.Len(t, res.Externals, 1)
	assert.Equal(t, "os", res.Externals[0].Module)
	assert.True(t, res.Externals[0].Bare())
}

func TestRewrite_CollisionRenamed(t *testing.T) {
	t.Parallel()

	g, res := mustRewrite(t, map[string]string{
		"main.py": "from a import value\nimport b\n\nprint(value + b.helper())\n",
		"a.py":    "value = 1\n",
		"b.py":    "value = 2\n\ndef helper():\n    return value\n",
	}, "main.py", defaultOptions())

	var aID, bID int

	for _, node := range g.Nodes() {
		switch node.Module.Name {
		case "a":
			aID = node.ID
		case "b":
			bID = node.ID
		}
	}

	// First module in emission order keeps the plain name.
	assert.Equal(t, "value", res.Symbols.Final(aID, "value"))
	assert.Equal(t, "value__b", res.Symbols.Final(bID, "value"))

	bFragment := fragmentByName(t, res, "b")
	text := fragmentText(bFragment)
	assert.Contains(t, text, "value__b = 2")
	assert.Contains(t, text, "return value__b")

	// The entry's references resolve through the bindings.
	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "print(value + helper())")
}

func TestRewrite_AttributeChainCollapsed(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "import helpers\n\nprint(helpers.greet())\n",
		"helpers.py": "def greet():\n    return \"hi\"\n",
	}, "main.py", defaultOptions())

	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "print(greet())")
	assert.NotContains(t, mainText, "helpers.greet")
}

func TestRewrite_DottedPackageReference(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":         "import pkg.util\n\nprint(pkg.util.clamp(5))\n",
		"pkg/__init__.py": "",
		"pkg/util.py":     "def clamp(x):\n    return x\n",
	}, "main.py", defaultOptions())

	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "print(clamp(5))")
}

func TestRewrite_EntryMainGuardLast(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from helpers import greet\n\nif __name__ == \"__main__\":\n    greet()\n\nEPILOG = True\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py", defaultOptions())

	mainFragment := fragmentByName(t, res, "main")
	require.NotEmpty(t, mainFragment.Blocks)

	last := mainFragment.Blocks[len(mainFragment.Blocks)-1]
	assert.Contains(t, last, "__main__")
}

func TestRewrite_TypeHintsStripped(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.PreserveTypeHints = false

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from helpers import clamp\n\nclamp(3)\n",
		"helpers.py": "def clamp(value: int, low: int = 0) -> int:\n    return max(low, value)\n\ncount: int = 0\n",
	}, "main.py", opts)

	text := fragmentText(fragmentByName(t, res, "helpers"))
	assert.Contains(t, text, "def clamp(value, low = 0):")
	assert.Contains(t, text, "count = 0")
	assert.NotContains(t, text, "int")
}

func TestRewrite_CommentsDroppedWhenDisabled(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"main.py":    "from helpers import greet\n\ngreet()\n",
		"helpers.py": "# Greets the caller.\ndef greet():\n    pass\n",
	}

	_, res := mustRewrite(t, files, "main.py", defaultOptions())
	assert.Contains(t, fragmentText(fragmentByName(t, res, "helpers")), "# Greets the caller.")

	opts := defaultOptions()
	opts.PreserveComments = false

	_, res = mustRewrite(t, files, "main.py", opts)
	assert.NotContains(t, fragmentText(fragmentByName(t, res, "helpers")), "#")
}

func TestRewrite_ModuleMetadata(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.PreserveModuleMetadata = true

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from helpers import greet, Thing\n\ngreet()\n",
		"helpers.py": "def greet():\n    pass\n\nclass Thing:\n    pass\n",
	}, "main.py", opts)

	text := fragmentText(fragmentByName(t, res, "helpers"))
	assert.Contains(t, text, `greet.__module__ = "helpers"`)
	assert.Contains(t, text, `Thing.__module__ = "helpers"`)

	// The entry module keeps its identity; no metadata lines there.
	assert.NotContains(t, fragmentText(fragmentByName(t, res, "main")), "__module__")
}

func TestRewrite_FunctionLevelCycleInlined(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py": "import a\n\nprint(a.fa())\n",
		"a.py":    "import b\n\ndef fa():\n    return b.fb() + 1\n",
		"b.py":    "import a\n\ndef fb():\n    return 1\n",
	}, "main.py", defaultOptions())

	// Cycle members emit as one unit; references collapse to final names.
	aText := fragmentText(fragmentByName(t, res, "a"))
	assert.Contains(t, aText, "return fb() + 1")
	assert.NotContains(t, aText, "import b")

	assert.NotEmpty(t, res.DeferredImports)
}

func TestRewrite_NestedImportBecomesPass(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "def run():\n    import helpers\n    return helpers.greet()\n\nrun()\n",
		"helpers.py": "def greet():\n    return \"hi\"\n",
	}, "main.py", defaultOptions())

	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "pass")
	assert.Contains(t, mainText, "return greet()")
	assert.NotContains(t, mainText, "import helpers")
}

func TestRewrite_NestedMixedImportKeepsExternal(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "def run():\n    import json, helpers\n    return helpers.greet(json.dumps({}))\n\nrun()\n",
		"helpers.py": "def greet(s):\n    return s\n",
	}, "main.py", defaultOptions())

	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "import json")
	assert.NotContains(t, mainText, "helpers")
}

func TestRewrite_ExternalsDedupedAndSorted(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "import sys\nimport helpers\n\nhelpers.greet()\nsys.exit(0)\n",
		"helpers.py": "import os\nimport sys\n\ndef greet():\n    return os.getpid()\n",
	}, "main.py", defaultOptions())

	modules := make([]string, len(res.Externals))
	for i, ext := range res.Externals {
		modules[i] = ext.Module
	}

	assert.Equal(t, []string{"os", "sys"}, modules)
}

func TestRewrite_FuturesMerged(t *testing.T) {
	t.Parallel()

	_, res := mustRewrite(t, map[string]string{
		"main.py":    "from __future__ import annotations\nimport helpers\n\nhelpers.greet()\n",
		"helpers.py": "from __future__ import annotations, generator_stop\n\ndef greet():\n    pass\n",
	}, "main.py", defaultOptions())

	assert.Equal(t, []string{"annotations", "generator_stop"}, res.Futures)

	for _, fragment := range res.Fragments {
		assert.NotContains(t, fragmentText(fragment), "__future__")
	}
}

func TestRewrite_DynamicLookupBlocksRename(t *testing.T) {
	t.Parallel()

	g, analysis := buildAnalyzed(t, map[string]string{
		"main.py": "from a import value\nimport b\n\nprint(value)\nb.helper()\n",
		"a.py":    "value = 1\n",
		"b.py":    "value = 2\n\ndef helper():\n    return globals()[\"value\"] + value\n",
	}, "main.py")

	_, err := Rewrite(g, analysis, defaultOptions())
	require.Error(t, err)

	var collisionErr *SymbolCollisionError

	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "b", collisionErr.Module)
}

func TestRewrite_RenamedAllEntryFails(t *testing.T) {
	t.Parallel()

	g, analysis := buildAnalyzed(t, map[string]string{
		"main.py": "from a import value\nimport b\n\nprint(value)\nb.helper()\n",
		"a.py":    "value = 1\n",
		"b.py":    "__all__ = [\"value\"]\n\nvalue = 2\n\ndef helper():\n    return value\n",
	}, "main.py")

	_, err := Rewrite(g, analysis, defaultOptions())

	var collisionErr *SymbolCollisionError

	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "value", collisionErr.Symbol)
}

func TestRewrite_GetattrOnInlinedModuleFails(t *testing.T) {
	t.Parallel()

	g, analysis := buildAnalyzed(t, map[string]string{
		"main.py":    "import helpers\n\nfn = getattr(helpers, \"greet\")\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py")

	_, err := Rewrite(g, analysis, defaultOptions())

	var collisionErr *SymbolCollisionError

	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "helpers", collisionErr.Symbol)
}

func TestRewrite_ModuleObjectUseFails(t *testing.T) {
	t.Parallel()

	g, analysis := buildAnalyzed(t, map[string]string{
		"main.py":    "import helpers\n\nregistry = [helpers]\n",
		"helpers.py": "def greet():\n    pass\n",
	}, "main.py")

	_, err := Rewrite(g, analysis, defaultOptions())

	var collisionErr *SymbolCollisionError

	require.ErrorAs(t, err, &collisionErr)
	assert.Contains(t, collisionErr.Reason, "first-class object")
}

func TestRewrite_ReservedExternalNameForcesRename(t *testing.T) {
	t.Parallel()

	g, res := mustRewrite(t, map[string]string{
		"main.py":    "from os import path\nimport helpers\n\nprint(path, helpers.path())\n",
		"helpers.py": "def path():\n    return \"x\"\n",
	}, "main.py", defaultOptions())

	var helpersID int

	for _, node := range g.Nodes() {
		if node.Module.Name == "helpers" {
			helpersID = node.ID
		}
	}

	// The hoisted `from os import path` reserves the plain name, so the
	// first-party symbol moves aside.
	assert.Equal(t, "path__helpers", res.Symbols.Final(helpersID, "path"))

	mainText := fragmentText(fragmentByName(t, res, "main"))
	assert.Contains(t, mainText, "path__helpers()")
}

func TestApplyEdits_OverlapPrecedence(t *testing.T) {
	t.Parallel()

	text := "x = helpers.greet(helpers)"

	edits := []edit{
		// Attribute rewrite spanning bytes 4..17 ("helpers.greet").
		{span: pysrc.Span{Start: 4, End: 17}, text: "greet", rank: 0},
		// Identifier rewrite nested inside the attribute span is dropped.
		{span: pysrc.Span{Start: 4, End: 11}, text: "IGNORED", rank: 1},
		// Disjoint identifier rewrite applies.
		{span: pysrc.Span{Start: 18, End: 25}, text: "obj", rank: 1},
	}

	assert.Equal(t, "x = greet(obj)", applyEdits(text, 0, edits))
}

func TestApplyEdits_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unchanged", applyEdits("unchanged", 0, nil))
}
