package protocol

// Opcodes understood by the line protocol.
// Matching is case-insensitive; these are the canonical uppercase forms.
const (
	// OpSleep - Occupy the worker for the given number of milliseconds
	OpSleep = "SLEEP"

	// OpEcho - Return the argument text unchanged
	OpEcho = "ECHO"
)

// Pseudo-opcodes used as metric labels for requests that never reach a
// procedure. Keeping these fixed bounds label cardinality regardless of what
// clients send.
const (
	OpEmpty   = "EMPTY"
	OpUnknown = "UNKNOWN"
)

// SLEEP argument bounds, in milliseconds.
const (
	MinSleepMillis = 0
	MaxSleepMillis = 10000
)

// Reply prefixes and fixed reply texts.
const (
	ReplyOK  = "OK"
	ReplyErr = "ERR"

	MsgEmptyRequest    = "ERR empty request"
	MsgInvalidArgument = "ERR invalid argument"
	MsgSleepRange      = "ERR SLEEP ms must be 0..10000"
	MsgUnknownOpPrefix = "ERR unknown op "

	// MsgServerBusy is sent instead of queueing a request when the server
	// refuses it under the reject backpressure policy.
	MsgServerBusy = "ERR server busy"

	// MsgInternalError is sent when a procedure panics.
	MsgInternalError = "ERR internal error"

	// MsgShuttingDown answers requests still queued when shutdown gives up
	// waiting for the workers.
	MsgShuttingDown = "ERR server shutting down"
)
