// Package triage provides the business boundary for triagebot's issue triage.
// It defines the Engine (classification, field matching and label/comment
// reconciliation for one issue snapshot), the Service (per-issue locking,
// fresh remote reads, applying mutations, run records), and the Provider,
// Tracker, Store and Notifier interfaces the outer packages implement.
package triage
