// Package core contains the pure decision logic of the circulation engine.
//
// Every function here is deterministic and free of I/O and clock access: it
// takes the projected state relevant to one decision plus the policy values,
// and returns either nil or the taxonomy error the operation must fail with.
// The engine package gathers the state inside a storage transaction and
// applies the outcome; this split keeps the business rules independently
// testable.
package core
