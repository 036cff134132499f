// Package protocol implements the request/reply line protocol.
//
// A request is a single line of text: an opcode, optionally followed by
// whitespace and an argument. Every request produces exactly one reply line
// beginning with "OK" or "ERR". Replies never contain a line terminator; the
// transport appends one when writing.
//
// The handler is stateless. The only side effect of any procedure is the
// SLEEP delay, which blocks the calling goroutine for the requested duration.
package protocol

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Result is the outcome of handling one request line.
type Result struct {
	// Op is the canonical opcode (OpSleep, OpEcho) or one of the
	// pseudo-opcodes OpEmpty / OpUnknown. Suitable as a metric label.
	Op string

	// Reply is the reply line, without terminator.
	Reply string

	// Failed is true when Reply is an ERR reply.
	Failed bool
}

// procedure handles the argument text of one opcode.
type procedure func(h *Handler, arg string) Result

// dispatchTable maps uppercase opcodes to their procedures.
var dispatchTable = map[string]procedure{
	OpSleep: handleSleep,
	OpEcho:  handleEcho,
}

// Handler parses request lines and executes them.
//
// The zero value is ready to use and sleeps with time.Sleep.
type Handler struct {
	// Sleep replaces time.Sleep for the SLEEP procedure. Tests use it to
	// observe the requested duration without waiting.
	Sleep func(time.Duration)
}

// NewHandler returns a Handler that sleeps with time.Sleep.
func NewHandler() *Handler {
	return &Handler{}
}

// Execute handles one request line and returns the reply line.
func (h *Handler) Execute(line string) string {
	return h.Handle(line).Reply
}

// Handle parses one request line and dispatches it.
//
// Leading and trailing whitespace (including a stray "\r") is ignored. The
// opcode is the text up to the first whitespace character; everything after
// that single separator is the argument, passed through verbatim.
func (h *Handler) Handle(line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{Op: OpEmpty, Reply: MsgEmptyRequest, Failed: true}
	}

	op, arg := splitRequest(line)
	op = strings.ToUpper(op)

	proc, ok := dispatchTable[op]
	if !ok {
		return Result{Op: OpUnknown, Reply: MsgUnknownOpPrefix + op, Failed: true}
	}

	return proc(h, arg)
}

// splitRequest splits a trimmed, non-empty line into opcode and argument.
func splitRequest(line string) (op, arg string) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}

	// Skip exactly one separator rune; any further whitespace belongs to the
	// argument.
	_, size := utf8.DecodeRuneInString(line[idx:])
	return line[:idx], line[idx+size:]
}

func handleSleep(h *Handler, arg string) Result {
	ms, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Result{Op: OpSleep, Reply: MsgSleepRange, Failed: true}
		}
		return Result{Op: OpSleep, Reply: MsgInvalidArgument, Failed: true}
	}
	if ms < MinSleepMillis || ms > MaxSleepMillis {
		return Result{Op: OpSleep, Reply: MsgSleepRange, Failed: true}
	}

	h.sleep(time.Duration(ms) * time.Millisecond)

	return Result{Op: OpSleep, Reply: ReplyOK + " " + strconv.Itoa(ms)}
}

func handleEcho(_ *Handler, arg string) Result {
	return Result{Op: OpEcho, Reply: ReplyOK + " " + arg}
}

func (h *Handler) sleep(d time.Duration) {
	if h != nil && h.Sleep != nil {
		h.Sleep(d)
		return
	}
	time.Sleep(d)
}
