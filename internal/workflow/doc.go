// Package workflow tracks pipeline invocations as tasks.
//
// The Manager accepts requests either synchronously (Run) or asynchronously
// (Submit), bounds concurrent invocations with a weighted semaphore, and
// keeps an in-memory registry of task status and progress. Finished tasks are
// pruned by a janitor once they exceed the configured TTL, so status stays
// queryable for a while after completion without growing without bound.
//
// Task state lives only in memory; the pipeline's own store is the durable
// record. A daemon restart forgets task history but never data.
package workflow
