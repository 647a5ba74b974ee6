// Package storage provides the persistence layer used by the scheduler.
//
// It supplies:
//   - Regimen and sequence definitions (owned by the remote sync layer)
//   - The device timezone setting
//   - Durable per-item-per-day execution markers (at-most-once bookkeeping)
package storage
