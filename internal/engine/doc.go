// Package engine provides the asynchronous job execution engine.
// Submitted jobs are queued in memory and drained by a fixed pool of
// workers that resolve each job's computation through the task registry,
// persist the result, and advance the job through
// pending→processing→completed.
package engine
