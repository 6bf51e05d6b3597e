// Package memory provides the persistent long-lived knowledge documents
// backing context assembly.
//
// Four JSON documents live under the data directory:
//
//   - profile.json: assistant self-awareness, per-domain briefings, and
//     rolling recent conversation topics
//   - decisions.json: the decision log with rationale and alternatives
//   - project_states.json: per-project phase, priorities, and blockers
//   - scaffold.json: structural position, recent completions, open
//     loops, and parked tangents
//
// The [Store] handles persistence. Writes are atomic (temp file +
// rename) and guarded by file locking via [github.com/gofrs/flock], so
// a CLI invocation and a running server can share the same data
// directory. A missing document reads as its zero value, never as an
// error.
package memory
