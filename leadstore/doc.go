// Package leadstore provides LeadStore implementations: a process-local
// in-memory store for tests and single-process deployments, and a durable
// SQLite-backed store in the sqlite subpackage.
package leadstore
