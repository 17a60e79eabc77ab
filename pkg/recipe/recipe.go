package recipe

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/cuemby/burrow/pkg/errdefs"
)

var (
	nameRe   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	envVarRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// InstrumentationLevel qualifies how much build instrumentation a recipe
// carries. Production is the zero value and the default.
type InstrumentationLevel int

const (
	Production InstrumentationLevel = iota
	Development
	Debug
)

func (l InstrumentationLevel) String() string {
	switch l {
	case Production:
		return "production"
	case Development:
		return "development"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("InstrumentationLevel(%d)", int(l))
}

// ParseInstrumentationLevel parses the level names accepted in recipe
// descriptors. An empty string is Production.
func ParseInstrumentationLevel(s string) (InstrumentationLevel, error) {
	switch strings.ToLower(s) {
	case "", "production":
		return Production, nil
	case "development":
		return Development, nil
	case "debug":
		return Debug, nil
	}
	return Production, errdefs.Validationf("unknown instrumentation level %q", s)
}

// Product is the build target a recipe belongs to. Properties keep their
// descriptor order: they are surfaced to build scripts as numbered
// environment variables, and the numbering must be stable.
type Product struct {
	Name       string     `yaml:"name"`
	Version    string     `yaml:"version"`
	Properties Properties `yaml:"properties"`
}

func (p *Product) validate() error {
	if !nameRe.MatchString(p.Name) {
		return errdefs.Validationf("product name %q is invalid", p.Name)
	}
	if _, err := semver.Parse(p.Version); err != nil {
		return errdefs.Validationf("product %q version %q is not a valid semantic version: %v",
			p.Name, p.Version, err)
	}
	for _, prop := range p.Properties {
		if !envVarRe.MatchString(prop.Key) {
			return errdefs.Validationf(
				"product %q property key %q cannot name an environment variable", p.Name, prop.Key)
		}
	}
	return nil
}

// TaintedVersion returns the product version, tainted with an
// "instrumented" build metadata tag when instrumented is set. The taint
// marks images built with non-production instrumentation so that they can
// never be mistaken for releasable artifacts.
func (p *Product) TaintedVersion(instrumented bool) (string, error) {
	version, err := semver.Parse(p.Version)
	if err != nil {
		return "", errdefs.Validationf("product %q version %q is not a valid semantic version: %v",
			p.Name, p.Version, err)
	}
	if instrumented {
		version.Build = append(version.Build, "instrumented")
	}
	return version.String(), nil
}

// Recipe describes one buildable target of a product: which SDK image
// drives it, the commands bracketing every SDK session, and the extra
// container privileges it needs.
type Recipe struct {
	Name    string  `yaml:"name"`
	Product Product `yaml:"product"`

	// Sdk names the recipe providing the SDK image, as "<product>/<recipe>".
	// SDK recipes themselves leave it empty.
	Sdk string `yaml:"sdk"`

	InstrumentationLevel InstrumentationLevel `yaml:"-"`

	// Cwd is the working directory of commands run in SDK sessions.
	Cwd string `yaml:"cwd"`

	// Env is the fixed environment of SDK sessions, under the injected
	// CURRENT_* variables.
	Env map[string]string `yaml:"env"`

	PreludeCommands  []string `yaml:"prelude_commands"`
	PostludeCommands []string `yaml:"postlude_commands"`

	// Features names the feature set composed for this recipe; each
	// feature contributes the actions it implements.
	Features []string `yaml:"features"`

	// Actions holds the command lines each action runs, keyed by action
	// name.
	Actions map[string][]string `yaml:"actions"`

	// BootstrapArchive is the rootfs tar archive an SDK recipe bootstraps
	// from.
	BootstrapArchive string `yaml:"bootstrap_archive"`

	Capabilities   []string `yaml:"capabilities"`
	DeviceBindings []string `yaml:"device_bindings"`

	// WritableAssetDirs are asset subdirectories bind-mounted read-write
	// during build-like actions.
	WritableAssetDirs []string `yaml:"writable_asset_dirs"`

	// Include pulls other descriptor files into this one before decoding,
	// lowest precedence first.
	Include []string `yaml:"include"`

	// instrumentation is the raw descriptor field, resolved into
	// InstrumentationLevel at load time.
	Instrumentation string `yaml:"instrumentation"`
}

// Identifier returns the "<product>/<recipe>" form used in descriptor
// references and log lines.
func (r *Recipe) Identifier() string {
	return r.Product.Name + "/" + r.Name
}

// OutSubpath returns the output directory subpath of this recipe within
// the source tree root.
func (r *Recipe) OutSubpath() string {
	return filepath.Join("out", r.Product.Name, r.Product.Version, r.Name)
}

// CacheSubpath returns the cache directory subpath of this recipe within
// the source tree root.
func (r *Recipe) CacheSubpath() string {
	return filepath.Join("cache", r.Product.Name, r.Product.Version, r.Name)
}

var identifierRe = regexp.MustCompile(`^[^\s/]+/[^\s/]+$`)

func (r *Recipe) validate() error {
	if !nameRe.MatchString(r.Name) {
		return errdefs.Validationf("recipe name %q is invalid", r.Name)
	}
	if err := r.Product.validate(); err != nil {
		return err
	}
	if r.Sdk != "" && !identifierRe.MatchString(r.Sdk) {
		return errdefs.Validationf(
			"recipe %q sdk reference %q must have the \"<product>/<recipe>\" form", r.Name, r.Sdk)
	}
	for key := range r.Env {
		if !envVarRe.MatchString(key) {
			return errdefs.Validationf(
				"recipe %q environment key %q cannot name an environment variable", r.Name, key)
		}
	}
	return nil
}
