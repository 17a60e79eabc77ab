package recipe

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
)

// Load reads a recipe descriptor and every descriptor it includes. An
// included descriptor is decoded before its includer, so the including
// file always takes precedence over what it pulls in. Includes are
// resolved relative to the file naming them.
//
// The traversal carries a visited set keyed on the normalized descriptor
// path and fails fast on any revisit, so include cycles are reported
// instead of looping.
func Load(path string) (*Recipe, error) {
	r := &Recipe{}
	visited := make(map[string]struct{})
	if err := loadInto(path, r, visited); err != nil {
		return nil, err
	}

	level, err := ParseInstrumentationLevel(r.Instrumentation)
	if err != nil {
		return nil, err
	}
	r.InstrumentationLevel = level
	if r.Cwd == "" {
		r.Cwd = "/"
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func loadInto(path string, r *Recipe, visited map[string]struct{}) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errdefs.Validationf("invalid recipe descriptor path %q: %v", path, err)
	}
	abs = filepath.Clean(abs)
	if _, seen := visited[abs]; seen {
		return errdefs.Validationf("recipe descriptor %q is included twice, include cycle", abs)
	}
	visited[abs] = struct{}{}

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read recipe descriptor: %w", err)
	}

	// The include list must be known before the descriptor's own fields
	// are applied: included files decode first, at lower precedence.
	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return errdefs.Validationf("malformed recipe descriptor %q: %v", abs, err)
	}
	for _, include := range head.Include {
		if !filepath.IsAbs(include) {
			include = filepath.Join(filepath.Dir(abs), include)
		}
		log.WithComponent("recipe").Debug().
			Str("descriptor", abs).
			Str("include", include).
			Msg("loading included descriptor")
		if err := loadInto(include, r, visited); err != nil {
			return err
		}
	}

	if err := yaml.Unmarshal(data, r); err != nil {
		return errdefs.Validationf("malformed recipe descriptor %q: %v", abs, err)
	}
	return nil
}
