package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep returns a sleep function that records requested durations.
func recordingSleep() (func(time.Duration), *[]time.Duration) {
	var calls []time.Duration
	return func(d time.Duration) { calls = append(calls, d) }, &calls
}

// ============================================================================
// Parsing
// ============================================================================

func TestHandle_EmptyRequest(t *testing.T) {
	h := &Handler{}

	for _, line := range []string{"", "   ", "\t", "\r", " \r "} {
		res := h.Handle(line)
		assert.Equal(t, MsgEmptyRequest, res.Reply, "line %q", line)
		assert.Equal(t, OpEmpty, res.Op)
		assert.True(t, res.Failed)
	}
}

func TestHandle_UnknownOpIsUppercased(t *testing.T) {
	h := &Handler{}

	tests := []struct {
		line string
		want string
	}{
		{"FOO", "ERR unknown op FOO"},
		{"foo bar baz", "ERR unknown op FOO"},
		{"  PiNg  ", "ERR unknown op PING"},
		{"sleepy 5", "ERR unknown op SLEEPY"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			res := h.Handle(tt.line)
			assert.Equal(t, tt.want, res.Reply)
			assert.Equal(t, OpUnknown, res.Op)
			assert.True(t, res.Failed)
		})
	}
}

func TestHandle_OpcodeIsCaseInsensitive(t *testing.T) {
	sleep, calls := recordingSleep()
	h := &Handler{Sleep: sleep}

	assert.Equal(t, "OK hi", h.Execute("echo hi"))
	assert.Equal(t, "OK hi", h.Execute("Echo hi"))
	assert.Equal(t, "OK 3", h.Execute("sleep 3"))
	assert.Len(t, *calls, 1)
}

func TestSplitRequest(t *testing.T) {
	tests := []struct {
		line    string
		wantOp  string
		wantArg string
	}{
		{"ECHO", "ECHO", ""},
		{"ECHO a", "ECHO", "a"},
		{"ECHO a  b", "ECHO", "a  b"},
		{"ECHO  a", "ECHO", " a"},
		{"ECHO\ta b", "ECHO", "a b"},
	}

	for _, tt := range tests {
		op, arg := splitRequest(tt.line)
		assert.Equal(t, tt.wantOp, op, "line %q", tt.line)
		assert.Equal(t, tt.wantArg, arg, "line %q", tt.line)
	}
}

// ============================================================================
// ECHO
// ============================================================================

func TestEcho(t *testing.T) {
	h := &Handler{}

	tests := []struct {
		name string
		line string
		want string
	}{
		{"simple", "ECHO hello", "OK hello"},
		{"internal whitespace preserved", "ECHO hello   big  world", "OK hello   big  world"},
		{"no argument", "ECHO", "OK "},
		{"trailing whitespace trimmed", "ECHO hi  \r", "OK hi"},
		{"argument looks like opcode", "ECHO SLEEP 10", "OK SLEEP 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.Handle(tt.line)
			assert.Equal(t, tt.want, res.Reply)
			assert.Equal(t, OpEcho, res.Op)
			assert.False(t, res.Failed)
		})
	}
}

func TestEcho_ReplyHasNoTerminator(t *testing.T) {
	h := &Handler{}
	reply := h.Execute("ECHO some text")
	assert.False(t, strings.ContainsAny(reply, "\r\n"))
}

// ============================================================================
// SLEEP
// ============================================================================

func TestSleep_ValidArguments(t *testing.T) {
	tests := []struct {
		line string
		want string
		dur  time.Duration
	}{
		{"SLEEP 0", "OK 0", 0},
		{"SLEEP 1", "OK 1", time.Millisecond},
		{"SLEEP 250", "OK 250", 250 * time.Millisecond},
		{"SLEEP 10000", "OK 10000", 10 * time.Second},
		{"SLEEP  42 ", "OK 42", 42 * time.Millisecond},
		{"SLEEP +7", "OK 7", 7 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sleep, calls := recordingSleep()
			h := &Handler{Sleep: sleep}

			res := h.Handle(tt.line)
			assert.Equal(t, tt.want, res.Reply)
			assert.False(t, res.Failed)
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.dur, (*calls)[0])
		})
	}
}

func TestSleep_OutOfRange(t *testing.T) {
	for _, line := range []string{
		"SLEEP -1",
		"SLEEP 10001",
		"SLEEP 99999999999999999999999",
		"SLEEP -99999999999999999999999",
	} {
		t.Run(line, func(t *testing.T) {
			sleep, calls := recordingSleep()
			h := &Handler{Sleep: sleep}

			res := h.Handle(line)
			assert.Equal(t, MsgSleepRange, res.Reply)
			assert.True(t, res.Failed)
			assert.Empty(t, *calls, "out-of-range SLEEP must not sleep")
		})
	}
}

func TestSleep_InvalidArgument(t *testing.T) {
	for _, line := range []string{
		"SLEEP",
		"SLEEP abc",
		"SLEEP 1.5",
		"SLEEP 10ms",
		"SLEEP 1 2",
	} {
		t.Run(line, func(t *testing.T) {
			sleep, calls := recordingSleep()
			h := &Handler{Sleep: sleep}

			res := h.Handle(line)
			assert.Equal(t, MsgInvalidArgument, res.Reply)
			assert.True(t, res.Failed)
			assert.Empty(t, *calls)
		})
	}
}

func TestSleep_RealClock(t *testing.T) {
	h := NewHandler()

	start := time.Now()
	reply := h.Execute("SLEEP 20")
	elapsed := time.Since(start)

	assert.Equal(t, "OK 20", reply)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestHandle_NilHandler(t *testing.T) {
	var h *Handler
	assert.Equal(t, "OK x", h.Execute("ECHO x"))
	assert.Equal(t, "OK 0", h.Execute("SLEEP 0"))
}
