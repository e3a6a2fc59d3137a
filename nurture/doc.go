// Package nurture holds the pure decision logic of the lead lifecycle:
// given a lead's stage and history and the current time, which action (if
// any) comes next and when. Decide performs no I/O so every stage × signal
// combination can be covered by table-driven tests.
package nurture
