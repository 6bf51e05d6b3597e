// Package session provides in-process conversation session storage.
//
// A session holds the rolling history of one conversation: the last
// few exchanges, capped so prompt assembly stays bounded. Sessions are
// deliberately ephemeral; durable conversation memory lives in the
// memory documents and the vector index, not here.
//
// Key operations:
//
//   - Lifecycle: [Store.GetOrCreate], [Store.Get], [Store.Delete]
//   - History: [Store.Append]
//   - Hygiene: [Store.Sweep], invoked opportunistically when the live
//     session count crosses a watermark
//
// # Concurrency
//
// Store is safe for concurrent use. The session map is guarded by one
// lock; each session serializes its own history mutation, so two rapid
// requests on the same session append in arrival order.
package session
