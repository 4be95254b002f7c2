// Package storage persists the job list.
//
// Backends load and save the whole list at once; there are no partial updates.
// Drivers:
//   - "file": one line per job (see job.Decode), rewritten via temp file + rename
//   - "sqlite": a single jobs table, replaced in one transaction
package storage
