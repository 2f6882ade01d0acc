// Package graph defines the scene graph produced by reference authoring
// scripts. A scene is a DAG of primitives, boolean operations and
// transforms; each root is a named component that becomes one solid of
// the authored reference.
package graph
