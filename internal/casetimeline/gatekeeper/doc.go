// Package gatekeeper decides which checklist tasks become actionable or
// auto-complete. A fixed table of rules is evaluated once, in order, against a
// single immutable snapshot. Rules never see each other's effects: multi-hop
// progress happens because the orchestrator re-runs the table after every
// persisted mutation.
package gatekeeper
