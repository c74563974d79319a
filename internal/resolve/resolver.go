// Package resolve classifies import references as standard-library,
// first-party, or third-party, and maps first-party references to concrete
// source files under the configured source roots.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/pysrc"
)

// Classification is the outcome category for an import reference.
type Classification int

const (
	// StdLib is a standard-library module for the target version.
	StdLib Classification = iota
	// FirstParty is a project module resolved to a source file.
	FirstParty
	// ThirdParty is an external dependency left as an import statement.
	ThirdParty
)

func (c Classification) String() string {
	switch c {
	case StdLib:
		return "stdlib"
	case FirstParty:
		return "first-party"
	case ThirdParty:
		return "third-party"
	default:
		return "unknown"
	}
}

// Result is a classified import reference. Path and Name are only set for
// first-party results.
type Result struct {
	Class Classification
	// Path is the resolved absolute file path of the first-party module.
	Path string
	// Name is the dotted module name the file is known by.
	Name string
	// IsPackage reports whether the resolved file is a package __init__.
	IsPackage bool
}

// ResolutionError reports a first-party-shaped reference with no file behind
// it: a relative import, or an absolute import under a declared first-party
// root, that does not resolve.
type ResolutionError struct {
	Module   string
	Importer string
	Line     int
	Tried    []string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve first-party import %q in %s", e.Module, e.Importer)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}

	if len(e.Tried) > 0 {
		msg += "; tried: " + strings.Join(e.Tried, ", ")
	}

	return msg
}

// Resolver classifies import references. Read-only after construction; safe
// for concurrent use.
type Resolver struct {
	roots      []string
	firstParty map[string]bool
	thirdParty map[string]bool
	stdlib     map[string]bool
}

// NewResolver builds a resolver from the run configuration. Relative source
// roots are resolved against baseDir, normally the entry module's directory.
func NewResolver(cfg *config.Config, baseDir string) (*Resolver, error) {
	minor, err := config.ParseTargetVersion(cfg.TargetVersion)
	if err != nil {
		return nil, err
	}

	resolver := &Resolver{
		firstParty: make(map[string]bool, len(cfg.FirstPartyNames)),
		thirdParty: make(map[string]bool, len(cfg.ThirdPartyNames)),
		stdlib:     StdlibNames(minor),
	}

	for _, name := range cfg.FirstPartyNames {
		resolver.firstParty[name] = true
	}

	for _, name := range cfg.ThirdPartyNames {
		resolver.thirdParty[name] = true
	}

	for _, dir := range cfg.SourceDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}

		absDir, absErr := filepath.Abs(dir)
		if absErr != nil {
			return nil, fmt.Errorf("resolve source dir %q: %w", dir, absErr)
		}

		resolver.roots = append(resolver.roots, absDir)
	}

	return resolver, nil
}

// Roots returns the absolute source roots in lookup priority order.
func (r *Resolver) Roots() []string {
	return r.roots
}

// Importer describes the module an import reference appears in.
type Importer struct {
	// Path is the importing module's absolute file path.
	Path string
	// Name is the importing module's dotted name.
	Name string
	// IsPackage reports whether the importer is a package __init__ file.
	IsPackage bool
}

// Resolve classifies one import reference.
func (r *Resolver) Resolve(ref pysrc.ImportRef, from Importer) (Result, error) {
	if ref.Level > 0 {
		return r.resolveRelative(ref, from)
	}

	if ref.Module == "" {
		return Result{}, &ResolutionError{Module: ".", Importer: from.Path, Line: ref.Line}
	}

	rootName := ref.Module
	if i := strings.IndexByte(rootName, '.'); i >= 0 {
		rootName = rootName[:i]
	}

	if r.thirdParty[rootName] {
		return Result{Class: ThirdParty}, nil
	}

	// Source roots take priority over the stdlib set so a project module can
	// shadow a standard-library name, matching interpreter path order.
	if result, tried, found := r.lookup(strings.Split(ref.Module, ".")); found {
		result.Name = ref.Module
		return result, nil
	} else if r.firstParty[rootName] {
		return Result{}, &ResolutionError{
			Module: ref.Module, Importer: from.Path, Line: ref.Line, Tried: tried,
		}
	}

	if r.stdlib[rootName] {
		return Result{Class: StdLib}, nil
	}

	return Result{Class: ThirdParty}, nil
}

// ResolveMember resolves a from-import member as a potential submodule of a
// first-party package, e.g. `from pkg import helpers` where helpers is
// pkg/helpers.py. Returns false when no such file exists, in which case the
// member is an ordinary attribute of the package.
func (r *Resolver) ResolveMember(packageName, member string) (Result, bool) {
	parts := append(strings.Split(packageName, "."), member)

	result, _, found := r.lookup(parts)
	if !found {
		return Result{}, false
	}

	result.Name = packageName + "." + member

	return result, true
}

// resolveRelative maps a relative import to a file next to (or above) the
// importing module. A relative reference that cannot be resolved is always a
// ResolutionError; relative imports are first-party by construction.
func (r *Resolver) resolveRelative(ref pysrc.ImportRef, from Importer) (Result, error) {
	// Level 1 is the importer's own package; each extra dot ascends one
	// package. A package __init__ counts as its own package.
	dir := filepath.Dir(from.Path)
	ascend := ref.Level - 1

	nameParts := strings.Split(from.Name, ".")
	if !from.IsPackage {
		nameParts = nameParts[:len(nameParts)-1]
	}

	for range ascend {
		dir = filepath.Dir(dir)

		if len(nameParts) > 0 {
			nameParts = nameParts[:len(nameParts)-1]
		}
	}

	targetParts := []string{}
	if ref.Module != "" {
		targetParts = strings.Split(ref.Module, ".")
	}

	candidate := filepath.Join(append([]string{dir}, targetParts...)...)
	tried := []string{candidate + ".py", filepath.Join(candidate, "__init__.py")}

	dotted := strings.Join(append(nameParts, targetParts...), ".")

	if fileExists(candidate + ".py") {
		return Result{Class: FirstParty, Path: candidate + ".py", Name: dotted}, nil
	}

	if fileExists(filepath.Join(candidate, "__init__.py")) {
		return Result{
			Class: FirstParty, Path: filepath.Join(candidate, "__init__.py"),
			Name: dotted, IsPackage: true,
		}, nil
	}

	display := strings.Repeat(".", ref.Level) + ref.Module

	return Result{}, &ResolutionError{
		Module: display, Importer: from.Path, Line: ref.Line, Tried: tried,
	}
}

// lookup tries each source root for parts as either a module file or a
// package __init__, returning the first hit in root priority order.
func (r *Resolver) lookup(parts []string) (Result, []string, bool) {
	var tried []string

	for _, root := range r.roots {
		base := filepath.Join(append([]string{root}, parts...)...)

		moduleFile := base + ".py"
		if fileExists(moduleFile) {
			return Result{Class: FirstParty, Path: moduleFile}, tried, true
		}

		tried = append(tried, moduleFile)

		initFile := filepath.Join(base, "__init__.py")
		if fileExists(initFile) {
			return Result{Class: FirstParty, Path: initFile, IsPackage: true}, tried, true
		}

		tried = append(tried, initFile)
	}

	return Result{}, tried, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
