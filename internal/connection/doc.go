// Package connection implements the client side connection and
// authentication state machine.
//
// A Machine owns one Transport at a time. Connect, Reconnect and Disconnect
// replace or drop it; every replacement removes the old transport's
// listeners and bumps a generation counter, so events still in flight from
// a superseded transport are discarded.
//
// Status moves idle -> connecting -> authenticating -> connected. Any state
// can move to error or reauth_required, reauth_required returns to
// authenticating when the user resubmits, and Disconnect returns to idle.
// Every change is recorded in a 50-entry transition log, and lifecycle
// actions in a 100-entry event log.
//
// Failures arriving from the transport are classified into a closed set of
// DisconnectKind values and routed to exactly one UI action: reopen the
// login form or show the error view. An ssh_error that arrives while a
// reauthentication is pending is an artifact of the server closing the old
// session; it is dropped and the pending flag is cleared.
//
// Nothing is retried automatically. Reconnect is always a user action.
//
// UI methods are called after the machine's lock is released, on the
// goroutine that delivered the triggering event. They must not block.
package connection
