// Package core defines the shared domain model and service contracts of
// NurtureMesh: leads and their lifecycle stages, message templates,
// scheduled actions, capability records, the error taxonomy and the
// interfaces (LeadStore, Scheduler, TemplateIndex, DirectoryClient,
// Deliverer) that concrete implementations in sibling packages satisfy.
//
// Types here carry no I/O; all blocking behavior lives behind the
// interfaces so the decision logic in package nurture stays pure and the
// orchestrator in package engine composes implementations freely.
package core
