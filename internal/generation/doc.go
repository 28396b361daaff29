// Package generation defines the boundary between the task orchestration
// core and whatever renders coloring pages. A Producer turns a generation
// request into a stored Artifact, reporting progress along the way; the
// preset subpackage provides the bundled implementation.
package generation
