package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/feature"
	"github.com/cuemby/burrow/pkg/recipe"
	"github.com/cuemby/burrow/pkg/sdk"
	"github.com/cuemby/burrow/pkg/system"
)

var execCmd = &cobra.Command{
	Use:   "exec <recipe.yaml> <action>",
	Short: "Run a recipe action inside its SDK container",
	Long: `Run one action of a recipe (root, configure, bundle, bootstrap,
run, ...) inside the SDK container the recipe declares. The action set is
composed from the features the recipe provides; the SDK recipe's prelude
and postlude commands bracket every session.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptorPath, action := args[0], args[1]

		target, err := recipe.Load(descriptorPath)
		if err != nil {
			return err
		}

		repoRoot, _ := cmd.Flags().GetString("repo-root")
		if repoRoot == "" {
			// The conventional layout keeps descriptors at
			// <root>/products/<product>/<recipe>/recipe.yaml.
			repoRoot = filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(descriptorPath))))
		}

		sdkRecipe := target
		if target.Sdk != "" {
			sdkDescriptor, _ := cmd.Flags().GetString("sdk-descriptor")
			if sdkDescriptor == "" {
				product, name, _ := strings.Cut(target.Sdk, "/")
				sdkDescriptor = filepath.Join(repoRoot, "products", product, name, "recipe.yaml")
			}
			if sdkRecipe, err = recipe.Load(sdkDescriptor); err != nil {
				return fmt.Errorf("failed to load the SDK recipe for %q: %w",
					target.Identifier(), err)
			}
		}

		s, err := sdk.New(sdkRecipe, sdk.Config{
			Runner:    runner,
			RepoRoot:  repoRoot,
			Privilege: priv,
			WorkDir:   flagWorkDir,
			TmpfsSize: flagTmpfsSize,
		})
		if err != nil {
			return err
		}

		registry := feature.NewRegistry()
		features := target.Features
		if len(features) == 0 {
			return fmt.Errorf("recipe %q declares no features", target.Identifier())
		}
		actions, err := registry.Compose(features...)
		if err != nil {
			return err
		}

		terminal, _ := cmd.Flags().GetBool("terminal")
		if !cmd.Flags().Changed("terminal") {
			terminal = system.TTYAttached()
		}
		return actions.Run(cmd.Context(), action, feature.RunContext{
			Sdk:      s,
			Target:   target,
			Terminal: terminal,
		})
	},
}

func init() {
	execCmd.Flags().String("repo-root", "", "Source tree root (defaults to four levels above the descriptor)")
	execCmd.Flags().String("sdk-descriptor", "", "Path to the SDK recipe descriptor (defaults to the conventional layout)")
	execCmd.Flags().Bool("terminal", false, "Attach the terminal to session commands")
}
