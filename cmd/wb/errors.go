package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/lockfile"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/utils"
)

// Error codes reported in JSON mode.
const (
	codeInvalidArgument = "invalid_argument"
	codeNotFound        = "not_found"
	codeAmbiguous       = "ambiguous_id"
	codeAlreadyClaimed  = "already_claimed"
	codeLeaseMismatch   = "lease_mismatch"
	codeLeaseExpired    = "lease_expired"
	codeNotClaimable    = "not_claimable"
	codeCycle           = "dependency_cycle"
	codeNotInitialized  = "not_initialized"
	codeLockBusy        = "lock_busy"
	codeInternal        = "internal"
)

// errorCode maps a sentinel error onto its JSON error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, lease.ErrInvalidArgument):
		return codeInvalidArgument
	case errors.Is(err, utils.ErrAmbiguous):
		return codeAmbiguous
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return codeNotFound
	case errors.Is(err, storage.ErrAlreadyClaimed):
		return codeAlreadyClaimed
	case errors.Is(err, storage.ErrLeaseMismatch):
		return codeLeaseMismatch
	case errors.Is(err, storage.ErrLeaseExpired):
		return codeLeaseExpired
	case errors.Is(err, storage.ErrNotClaimable):
		return codeNotClaimable
	case errors.Is(err, storage.ErrCycle):
		return codeCycle
	case errors.Is(err, storage.ErrNotInitialized):
		return codeNotInitialized
	case errors.Is(err, lockfile.ErrLockBusy):
		return codeLockBusy
	}
	return codeInternal
}

// fatalErr reports err in the active output format and exits with code 1.
func fatalErr(err error) {
	if isJSONOutput() {
		outputJSONError(err, errorCode(err))
		return
	}
	if errors.Is(err, storage.ErrNotInitialized) {
		FatalErrorWithHint(err.Error(), "Run 'wb init --prefix <prefix>' to set the issue prefix")
	}
	FatalError("%v", err)
}

// FatalError writes an error message to stderr and exits with code 1.
// Use this for fatal errors that prevent the command from completing.
//
// Example:
//
//	if err := store.CreateIssue(ctx, issue, actor); err != nil {
//	    FatalError("%v", err)
//	}
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	teardown()
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
//
// Example:
//
//	FatalErrorWithHint("database not found", "Run 'wb init' to create a database")
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	teardown()
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
// Use this for auxiliary work (last-touched bookkeeping, config seeding)
// whose failure should not fail the command.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
