package feature

import (
	"context"

	"github.com/cuemby/burrow/pkg/recipe"
	"github.com/cuemby/burrow/pkg/sdk"
)

// RunContext carries what an action needs to operate: the SDK driving
// the work and the recipe the work targets.
type RunContext struct {
	Sdk      *sdk.Sdk
	Target   *recipe.Recipe
	Terminal bool
}

// ActionFunc runs one action of a feature.
type ActionFunc func(ctx context.Context, rc RunContext) error

// Feature contributes a fixed set of named actions to the recipes that
// declare it. Features are composed explicitly through a Registry; two
// features of one recipe may not contribute the same action.
type Feature interface {
	// Name is the identifier recipes declare the feature under.
	Name() string

	// Actions returns the actions the feature contributes, keyed by
	// action name.
	Actions() map[string]ActionFunc
}
