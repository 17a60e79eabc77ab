package feature

import (
	"context"
	"errors"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/sdk"
)

// Builtins returns the built-in features: root filesystem production,
// configuration, bundling and the SDK lifecycle itself.
func Builtins() []Feature {
	return []Feature{
		&stepsFeature{name: "root", actions: []string{"root"}},
		&stepsFeature{name: "configure", actions: []string{"configure"}},
		&stepsFeature{name: "bundle", actions: []string{"bundle"}},
		&sdkFeature{},
	}
}

// stepsFeature runs the step lists the recipe configures under each of
// its action names, inside one SDK session per action.
type stepsFeature struct {
	name    string
	actions []string
}

func (f *stepsFeature) Name() string { return f.name }

func (f *stepsFeature) Actions() map[string]ActionFunc {
	actions := make(map[string]ActionFunc, len(f.actions))
	for _, action := range f.actions {
		action := action
		actions[action] = func(ctx context.Context, rc RunContext) error {
			return runSteps(ctx, action, rc)
		}
	}
	return actions
}

func runSteps(ctx context.Context, action string, rc RunContext) error {
	steps := rc.Target.Actions[action]
	if len(steps) == 0 {
		return errdefs.Validationf("recipe %q configures no steps for the action %q",
			rc.Target.Identifier(), action)
	}

	sess, err := rc.Sdk.Session(ctx, sdk.SessionOptions{
		Action:   action,
		Target:   rc.Target,
		Terminal: rc.Terminal,
	})
	if err != nil {
		return err
	}

	var bodyErr error
	for _, step := range steps {
		log.WithComponent("feature").Info().
			Str("recipe", rc.Target.Identifier()).
			Str("action", action).
			Str("command", step).
			Msg("running action step")
		if err := sess.Run(ctx, step); err != nil {
			bodyErr = err
			break
		}
	}
	// The postlude and teardown run regardless of the body outcome; a
	// failure there is reported alongside the body failure, not instead
	// of it.
	return errors.Join(bodyErr, sess.Close(ctx))
}

// sdkFeature contributes the SDK lifecycle: bootstrapping the SDK image
// and opening interactive run sessions in it.
type sdkFeature struct{}

func (f *sdkFeature) Name() string { return "sdk" }

func (f *sdkFeature) Actions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"bootstrap": runBootstrap,
		"run":       runInteractive,
	}
}

func runBootstrap(ctx context.Context, rc RunContext) error {
	archive := rc.Target.BootstrapArchive
	if archive == "" {
		return errdefs.Validationf("recipe %q declares no bootstrap archive",
			rc.Target.Identifier())
	}
	return rc.Sdk.Bootstrap(ctx, archive, rc.Target.Actions["bootstrap"], nil)
}

func runInteractive(ctx context.Context, rc RunContext) error {
	sess, err := rc.Sdk.Session(ctx, sdk.SessionOptions{
		Action:            "run",
		Target:            rc.Target,
		Terminal:          true,
		WritableRepoRoot:  true,
		SharedHostNetwork: true,
	})
	if err != nil {
		return err
	}

	// Interactive login shell so that /etc/profile gets sourced.
	command := "bash -li"
	if steps := rc.Target.Actions["run"]; len(steps) == 1 {
		command = steps[0]
	}
	return errors.Join(sess.Run(ctx, command), sess.Close(ctx))
}
