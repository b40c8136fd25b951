// Package tasks defines the closed set of computations that jobs can run,
// the registry the worker pool resolves them through, and the dataset
// statistics behind each task kind.
package tasks
