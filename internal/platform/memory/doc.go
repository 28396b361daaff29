// Package memory provides single-process implementations of the store
// interfaces. All stores created from one DB share a lock, and RunInTx holds
// that lock for the whole unit of work, undoing recorded mutations when the
// function fails.
package memory
