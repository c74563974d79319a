package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Config is the top-level configuration struct for serpen.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	// SourceDirs lists the roots searched when resolving first-party imports.
	// Relative entries are resolved against the entry module's directory.
	SourceDirs []string `mapstructure:"source_dirs"`

	// FirstPartyNames forces the listed top-level import names to be treated
	// as first-party even when heuristics would classify them otherwise.
	FirstPartyNames []string `mapstructure:"first_party_names"`

	// ThirdPartyNames forces the listed top-level import names to be treated
	// as third-party, overriding source-root resolution.
	ThirdPartyNames []string `mapstructure:"third_party_names"`

	// PreserveComments keeps each statement's leading comment block in the
	// bundled output.
	PreserveComments bool `mapstructure:"preserve_comments"`

	// PreserveTypeHints keeps parameter, return, and variable annotations.
	// When false, annotation clauses are stripped from the output.
	PreserveTypeHints bool `mapstructure:"preserve_type_hints"`

	// PreserveModuleMetadata emits __module__ reassignments after each inlined
	// fragment so reflection over bundled classes and functions still reports
	// the original owning module.
	PreserveModuleMetadata bool `mapstructure:"preserve_module_metadata"`

	// TargetVersion is the Python version the bundle targets ("3.12"). It
	// selects the standard-library name set used for import classification.
	TargetVersion string `mapstructure:"target_version"`

	Parse ParseConfig `mapstructure:"parse"`
}

// ParseConfig holds module-parsing resource knobs.
type ParseConfig struct {
	// Workers bounds concurrent module parses. Zero means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidTargetVersion indicates target_version is not of the form "3.N".
	ErrInvalidTargetVersion = errors.New("target_version must be of the form \"3.N\"")
	// ErrInvalidParseWorkers indicates the parse workers value is negative.
	ErrInvalidParseWorkers = errors.New("parse.workers must be non-negative")
)

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := ParseTargetVersion(c.TargetVersion); err != nil {
		return err
	}

	if c.Parse.Workers < 0 {
		return ErrInvalidParseWorkers
	}

	return nil
}

// ParseTargetVersion parses a "3.N" version string into its minor component.
func ParseTargetVersion(version string) (int, error) {
	major, minor, found := strings.Cut(version, ".")
	if !found || major != "3" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTargetVersion, version)
	}

	minorNum, err := strconv.Atoi(minor)
	if err != nil || minorNum < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTargetVersion, version)
	}

	return minorNum, nil
}
