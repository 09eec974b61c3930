package recorder

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellmark/shellmark/pkg/marker"
)

// fakeClock returns a clock advancing by a fixed step per call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestRecorder_SingleCommand(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, withClock(fakeClock(time.Unix(0, 0), 250*time.Millisecond)))

	r.HandleEvent(marker.CommandStart{Command: "echo hi"})
	r.CaptureOutput([]byte("hi\n"))
	r.HandleEvent(marker.CommandEnd{ExitCode: 0})
	r.HandleEvent(marker.WorkingDirectoryChanged{Path: "/home/u"})

	entry := buf.String()
	assert.Contains(t, entry, "=== echo hi\n")
	assert.Contains(t, entry, "hi\n")
	assert.Contains(t, entry, "=== exit 0 (250ms)\n")
	assert.Contains(t, entry, "pwd /home/u\n")
}

func TestRecorder_FailedCommandExitCode(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.HandleEvent(marker.CommandStart{Command: "false"})
	r.HandleEvent(marker.CommandEnd{ExitCode: 7})

	assert.Contains(t, buf.String(), "=== exit 7 ")
}

func TestRecorder_PwdReflectsDirectoryChange(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.HandleEvent(marker.CommandStart{Command: "cd /tmp && false"})
	r.HandleEvent(marker.CommandEnd{ExitCode: 1})
	r.HandleEvent(marker.WorkingDirectoryChanged{Path: "/tmp"})

	entry := buf.String()
	assert.Contains(t, entry, "=== exit 1 ")
	assert.Contains(t, entry, "pwd /tmp\n")
}

func TestRecorder_OrphanEndIgnored(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	// Stream picked up mid-cycle: END arrives with no open command.
	r.HandleEvent(marker.CommandEnd{ExitCode: 3})

	assert.NotContains(t, buf.String(), "exit 3")
}

func TestRecorder_DuplicateStartIgnored(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.HandleEvent(marker.CommandStart{Command: "sleep 10"})
	r.HandleEvent(marker.CommandStart{Command: "spurious"})
	r.HandleEvent(marker.CommandEnd{ExitCode: 0})

	entry := buf.String()
	assert.Contains(t, entry, "=== sleep 10\n")
	assert.NotContains(t, entry, "spurious")
}

func TestRecorder_OutputOutsideCommandDropped(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	// Prompt bytes before any command starts belong to no command.
	r.CaptureOutput([]byte("user@host:~$ "))
	r.HandleEvent(marker.CommandStart{Command: "true"})
	r.HandleEvent(marker.CommandEnd{ExitCode: 0})

	assert.NotContains(t, buf.String(), "user@host")
}

func TestRecorder_AnsiStrippedFromOutput(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.HandleEvent(marker.CommandStart{Command: "ls --color"})
	r.CaptureOutput([]byte("\x1b[01;34mdir\x1b[0m\n"))
	r.HandleEvent(marker.CommandEnd{ExitCode: 0})

	entry := buf.String()
	assert.Contains(t, entry, "dir\n")
	assert.NotContains(t, entry, "\x1b[")
}

func TestRecorder_CaptureLimitKeepsTail(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, WithCaptureLimit(16))

	r.HandleEvent(marker.CommandStart{Command: "yes"})
	r.CaptureOutput([]byte(strings.Repeat("x", 100)))
	r.CaptureOutput([]byte("THE-TAIL"))
	r.HandleEvent(marker.CommandEnd{ExitCode: 0})

	entry := buf.String()
	assert.Contains(t, entry, "THE-TAIL")
	assert.Contains(t, entry, "truncated")
	// Only the tail survives the cap.
	assert.NotContains(t, entry, strings.Repeat("x", 17))
}

func TestRecorder_EntriesInOrder(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	for _, cmd := range []string{"first", "second", "third"} {
		r.HandleEvent(marker.CommandStart{Command: cmd})
		r.HandleEvent(marker.CommandEnd{ExitCode: 0})
		r.HandleEvent(marker.WorkingDirectoryChanged{Path: "/home/u"})
	}

	entry := buf.String()
	first := strings.Index(entry, "=== first")
	second := strings.Index(entry, "=== second")
	third := strings.Index(entry, "=== third")
	require.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}
