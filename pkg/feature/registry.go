package feature

import (
	"context"
	"sort"

	"github.com/cuemby/burrow/pkg/errdefs"
)

// Registry holds the known features, keyed by declared name.
type Registry struct {
	features map[string]Feature
}

// NewRegistry creates a registry holding the built-in features.
func NewRegistry() *Registry {
	r := &Registry{features: make(map[string]Feature)}
	for _, f := range Builtins() {
		// Built-in names never collide.
		_ = r.Register(f)
	}
	return r
}

// Register adds a feature. Registering two features under one name is an
// error.
func (r *Registry) Register(f Feature) error {
	if _, exists := r.features[f.Name()]; exists {
		return errdefs.Validationf("feature %q is already registered", f.Name())
	}
	r.features[f.Name()] = f
	return nil
}

// Names returns the registered feature names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.features))
	for name := range r.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActionSet is the composed action table of one recipe.
type ActionSet struct {
	actions map[string]composedAction
}

type composedAction struct {
	feature string
	run     ActionFunc
}

// Compose resolves the named features and merges their action tables.
// Composition fails on an unknown feature name and on any action
// contributed by two of the selected features: collisions surface here,
// when the recipe is composed, not when the colliding action eventually
// runs.
func (r *Registry) Compose(names ...string) (*ActionSet, error) {
	set := &ActionSet{actions: make(map[string]composedAction)}
	for _, name := range names {
		f, ok := r.features[name]
		if !ok {
			return nil, errdefs.Validationf("unknown feature %q, known features are %v",
				name, r.Names())
		}
		for action, run := range f.Actions() {
			if prev, exists := set.actions[action]; exists {
				return nil, errdefs.Validationf(
					"features %q and %q both contribute the action %q",
					prev.feature, name, action)
			}
			set.actions[action] = composedAction{feature: name, run: run}
		}
	}
	return set, nil
}

// Actions returns the composed action names, sorted.
func (s *ActionSet) Actions() []string {
	actions := make([]string, 0, len(s.actions))
	for action := range s.actions {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Run executes the named action.
func (s *ActionSet) Run(ctx context.Context, action string, rc RunContext) error {
	a, ok := s.actions[action]
	if !ok {
		return errdefs.Validationf("no composed feature contributes the action %q, available actions are %v",
			action, s.Actions())
	}
	return a.run(ctx, rc)
}
