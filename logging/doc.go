// Package logging provides a tiny abstraction over slog so downstream
// code can depend on a minimal interface (Logger) while allowing users to
// plug any structured logger. It also offers a richer NurtureLogger with
// contextual helpers (component, lead, tick) and domain specific logging
// helpers for deliveries, scheduling and directory calls.
package logging
