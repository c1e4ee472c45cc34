// Package errors provides the structured error taxonomy used across the
// sorting line.
//
// # Categories
//
//   - Transient: the notification bus hiccupped; retry may succeed.
//   - Permanent: bad launch parameters, unknown operator input, or a command
//     that needs a docked truck when none is docked.
//   - Internal: a lock or semaphore was misused, or an invariant broke.
//
// Internal errors with codes SYNC_FAILURE, ASSERTION or PANIC are fatal: the
// worker that sees one stops after its scoped guards release whatever it held.
// Logical "belt full" / "belt empty" / "truck full" outcomes are not errors.
//
// # Usage
//
//	err := errors.SyncFailure("EMPTY", cause, errors.WithComponent("producer-A"))
//	if errors.IsFatal(err) {
//	    return err
//	}
package errors
