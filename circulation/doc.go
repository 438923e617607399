// Package circulation defines the public contract of the circulation and
// fines engine: the entity types of the four ledgers (copies, loans,
// fines/payments, reservations), the error taxonomy every operation reports
// through, the configuration knobs, the observability interfaces, and the
// Storage contract that every persistence backend must honor.
//
// The business workflows themselves live in the engine subpackage; storage
// backends live in memstore and postgresstore.
package circulation
