// Package dispatch delivers fired jobs to users over pluggable channels.
//
// The Gateway resolves the recipient, applies a per-channel rate limit, and
// tries the user's preferred channel first with fallback to the others. The
// scheduler owns job-level retries; this package owns the per-send timeout.
package dispatch
