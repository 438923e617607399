// Package engine implements the circulation workflows on top of the
// circulation.Storage contract: checkout, renewal, return with fine
// generation, the reservation queue, payment settlement, sanctions, and the
// inventory transitions. Each operation runs as one serializable unit of
// work and is retried with exponential backoff on concurrency conflicts;
// every committed mutation leaves an audit record in the storage outbox.
package engine
