/*
Package recipe loads the YAML descriptors naming what to build: a product
(name, semantic version, ordered properties) and its recipes (SDK
reference, session prelude/postlude commands, extra container privileges).

Descriptors may include other descriptors; included files decode at lower
precedence and the traversal rejects cycles by tracking every visited
path. Product properties keep their descriptor order because they are
exported to build scripts as numbered environment variables.
*/
package recipe
