// Package directory implements the agent discovery protocol: capability
// registration and query-by-capability lookup against an external
// directory service over a JSON request/response channel. Discovery
// results are advisory and time-bounded; the client enforces a freshness
// window instead of caching records indefinitely. An in-memory directory
// is provided for tests and single-process meshes.
package directory
