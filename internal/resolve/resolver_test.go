package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/pysrc"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestResolver(t *testing.T, root string, mutate func(*config.Config)) *Resolver {
	t.Helper()

	cfg := &config.Config{
		SourceDirs:    []string{"."},
		TargetVersion: "3.12",
	}
	if mutate != nil {
		mutate(cfg)
	}

	resolver, err := NewResolver(cfg, root)
	require.NoError(t, err)

	return resolver
}

func TestResolve_FirstPartyModule(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"helpers.py": "def greet(): pass\n"})

	resolver := newTestResolver(t, root, nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "helpers"}, Importer{})
	require.NoError(t, err)

	assert.Equal(t, FirstParty, result.Class)
	assert.Equal(t, filepath.Join(root, "helpers.py"), result.Path)
	assert.Equal(t, "helpers", result.Name)
	assert.False(t, result.IsPackage)
}

func TestResolve_FirstPartyPackage(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/util.py":     "def clamp(): pass\n",
	})

	resolver := newTestResolver(t, root, nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "pkg"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, FirstParty, result.Class)
	assert.True(t, result.IsPackage)

	result, err = resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "pkg.util"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, "pkg.util", result.Name)
	assert.Equal(t, filepath.Join(root, "pkg", "util.py"), result.Path)
}

func TestResolve_StdlibClassification(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, t.TempDir(), nil)

	for _, name := range []string{"os", "os.path", "json", "typing", "collections.abc"} {
		result, err := resolver.Resolve(
			pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: name}, Importer{})
		require.NoError(t, err)
		assert.Equal(t, StdLib, result.Class, "module %s", name)
	}
}

func TestResolve_StdlibTracksTargetVersion(t *testing.T) {
	t.Parallel()

	// tomllib appeared in 3.11; distutils was removed in 3.12.
	old := newTestResolver(t, t.TempDir(), func(cfg *config.Config) { cfg.TargetVersion = "3.10" })
	current := newTestResolver(t, t.TempDir(), nil)

	result, err := old.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "tomllib"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, ThirdParty, result.Class)

	result, err = current.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "tomllib"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, StdLib, result.Class)

	result, err = old.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "distutils"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, StdLib, result.Class)

	result, err = current.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "distutils"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, ThirdParty, result.Class)
}

func TestResolve_UnknownIsThirdParty(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, t.TempDir(), nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "numpy"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, ThirdParty, result.Class)
}

func TestResolve_ProjectModuleShadowsStdlib(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"json.py": "def dumps(): pass\n"})

	resolver := newTestResolver(t, root, nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "json"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, FirstParty, result.Class)
}

func TestResolve_ThirdPartyOverride(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"requests.py": "x = 1\n"})

	resolver := newTestResolver(t, root, func(cfg *config.Config) {
		cfg.ThirdPartyNames = []string{"requests"}
	})

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "requests"}, Importer{})
	require.NoError(t, err)
	assert.Equal(t, ThirdParty, result.Class)
}

func TestResolve_ForcedFirstPartyMissing(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, t.TempDir(), func(cfg *config.Config) {
		cfg.FirstPartyNames = []string{"mylib"}
	})

	_, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: "mylib.core", Line: 3},
		Importer{Path: "/src/main.py"})
	require.Error(t, err)

	var resErr *ResolutionError

	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "mylib.core", resErr.Module)
	assert.Equal(t, 3, resErr.Line)
	assert.NotEmpty(t, resErr.Tried)
}

func TestResolve_RelativeSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/main.py":     "",
		"pkg/helpers.py":  "",
	})

	resolver := newTestResolver(t, root, nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportFrom, Level: 1, Module: "helpers", Name: "greet"},
		Importer{Path: filepath.Join(root, "pkg", "main.py"), Name: "pkg.main"})
	require.NoError(t, err)

	assert.Equal(t, FirstParty, result.Class)
	assert.Equal(t, filepath.Join(root, "pkg", "helpers.py"), result.Path)
	assert.Equal(t, "pkg.helpers", result.Name)
}

func TestResolve_RelativeParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py":     "",
		"pkg/shared.py":       "",
		"pkg/sub/__init__.py": "",
		"pkg/sub/worker.py":   "",
	})

	resolver := newTestResolver(t, root, nil)

	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportFrom, Level: 2, Module: "shared", Name: "thing"},
		Importer{Path: filepath.Join(root, "pkg", "sub", "worker.py"), Name: "pkg.sub.worker"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "pkg", "shared.py"), result.Path)
	assert.Equal(t, "pkg.shared", result.Name)
}

func TestResolve_RelativeFromPackageInit(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/helpers.py":  "",
	})

	resolver := newTestResolver(t, root, nil)

	// Level 1 from a package __init__ resolves within the package itself.
	result, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportFrom, Level: 1, Module: "helpers", Name: "greet"},
		Importer{Path: filepath.Join(root, "pkg", "__init__.py"), Name: "pkg", IsPackage: true})
	require.NoError(t, err)

	assert.Equal(t, "pkg.helpers", result.Name)
}

func TestResolve_RelativeMissing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/main.py":     "",
	})

	resolver := newTestResolver(t, root, nil)

	_, err := resolver.Resolve(
		pysrc.ImportRef{Kind: pysrc.ImportFrom, Level: 1, Module: "missing", Name: "x", Line: 7},
		Importer{Path: filepath.Join(root, "pkg", "main.py"), Name: "pkg.main"})

	var resErr *ResolutionError

	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ".missing", resErr.Module)
}

func TestResolveMember_Submodule(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/util.py":     "",
	})

	resolver := newTestResolver(t, root, nil)

	result, ok := resolver.ResolveMember("pkg", "util")
	require.True(t, ok)
	assert.Equal(t, "pkg.util", result.Name)

	_, ok = resolver.ResolveMember("pkg", "greet")
	assert.False(t, ok)
}

func TestStdlibNames_LegacyAndAdded(t *testing.T) {
	t.Parallel()

	names := StdlibNames(12)
	assert.True(t, names["graphlib"])
	assert.True(t, names["zoneinfo"])
	assert.False(t, names["asyncore"])

	older := StdlibNames(8)
	assert.False(t, older["graphlib"])
	assert.True(t, older["asyncore"])
}
