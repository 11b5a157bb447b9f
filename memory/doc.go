// Package memory provides the conversation memory collaborator: a Provider
// interface consumed by the service, the richer Store interface used to record
// turns, and two Store implementations (process-local and SQLite).
//
// A snapshot always carries the short-term window of recent messages. The
// long-term kinds (semantic facts, user profile, episodic summary, procedural
// patterns) are included only when their Toggles are enabled.
package memory
