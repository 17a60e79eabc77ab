/*
Package feature composes the operations a recipe supports.

Each Feature contributes a fixed set of named actions (root, configure,
bundle, bootstrap, run). Recipes declare the features they provide; a
Registry resolves the declared names and merges the action tables, and
rejects the composition when two features contribute the same action.
Collisions are detected when the recipe is composed, never at action run
time.
*/
package feature
