// Package notify provides Deliverer implementations for the outbound
// transports: a structured-log deliverer for dry runs and local
// development, and a webhook deliverer posting the resolved message to an
// HTTP endpoint (email gateways and chat integrations typically sit
// behind one). The orchestrator treats all of them uniformly through
// core.Deliverer.
package notify
