// Package scheduler is carebot's reminder engine.
//
// It converts per-user time-window configuration into concrete fire times,
// keeps an in-memory job registry, picks which incomplete task to remind
// about via weighted random selection, and runs the daily reconciliation
// loop that rebuilds the job set and sweeps orphaned reminders.
//
// The package is responsible only for:
//   - computing and deduplicating fire times
//   - firing due jobs through the dispatch gateway (with bounded retries)
//   - cleaning up jobs tied to deleted/completed tasks
//
// Delivery itself (Telegram, email) lives in internal/dispatch.
package scheduler
