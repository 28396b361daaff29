// Package events decouples request handling from background execution.
//
// The generation service emits a TaskRequestEvent after a task has been
// charged and recorded; the task package registers a handler for the event
// type that turns it into a job on the runner. Neither side imports the
// other.
package events
