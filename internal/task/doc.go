// Package task runs generation jobs off the request path.
//
// A bounded TaskQueue feeds a WorkerPool; the TaskRunner owns both and also
// resolves tasks orphaned by a restart or stuck in processing. Jobs arrive
// through TaskFactoryEventHandler, which turns generation events into
// GenerationJobs.
package task
