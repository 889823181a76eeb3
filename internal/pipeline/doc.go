// Package pipeline runs one monitoring invocation for one mine: resolve the
// date ranges not yet stored, fetch and score samples, flag excavation,
// synthesize protected zones, detect violations, classify alerts, and persist
// everything idempotently.
//
// Orchestrator.Run takes each missing range from fetch to commit before it
// fetches the next. Zones for a range come from every stored observation of
// the mine plus the range's new rows, and alerts are classified over the
// stored violation history. A range's observations, violations, and alerts
// commit in one transaction. A failing range aborts the run; ranges already
// committed stay committed and are not fetched again.
package pipeline
