// Package recorder consumes decoded lifecycle events and writes a
// structured command log: one entry per command with its text, captured
// output, exit code, and duration, plus the working directory reported
// at each prompt.
package recorder

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/shellmark/shellmark/pkg/marker"
)

// DefaultCaptureLimit caps the output retained per command. When a
// command produces more, only the tail is kept and the entry is marked
// truncated.
const DefaultCaptureLimit = 1024 * 1024

// Recorder implements the session consumer interface over a log writer.
// It is driven by the session's single read loop and is not safe for
// concurrent use.
type Recorder struct {
	w            io.Writer
	captureLimit int
	verbose      bool
	now          func() time.Time

	current *commandRecord
}

// commandRecord accumulates one in-flight command between its START and
// END events.
type commandRecord struct {
	command   string
	started   time.Time
	output    []byte
	truncated bool
}

// Option is a functional option for Recorder configuration.
type Option func(*Recorder)

// WithCaptureLimit overrides the per-command output cap in bytes.
func WithCaptureLimit(limit int) Option {
	return func(r *Recorder) {
		if limit > 0 {
			r.captureLimit = limit
		}
	}
}

// WithVerbose enables internal diagnostics on the standard logger. The
// log writer itself never receives diagnostics, only entries.
func WithVerbose(verbose bool) Option {
	return func(r *Recorder) {
		r.verbose = verbose
	}
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New creates a recorder writing log entries to w.
func New(w io.Writer, opts ...Option) *Recorder {
	r := &Recorder{
		w:            w,
		captureLimit: DefaultCaptureLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleEvent processes one decoded lifecycle event. Orphan events —
// an END or a duplicate START when the stream was picked up mid-cycle —
// are ignored rather than treated as errors, since the host cannot
// assume it observed the stream from its beginning.
func (r *Recorder) HandleEvent(event marker.Event) {
	switch e := event.(type) {
	case marker.CommandStart:
		if r.current != nil {
			if r.verbose {
				log.Printf("recorder: START while a command is open, ignoring: %q", e.Command)
			}
			return
		}
		r.current = &commandRecord{
			command: e.Command,
			started: r.now(),
		}
	case marker.CommandEnd:
		if r.current == nil {
			if r.verbose {
				log.Printf("recorder: orphan END (exit %d), ignoring", e.ExitCode)
			}
			return
		}
		r.writeEntry(r.current, e.ExitCode)
		r.current = nil
	case marker.WorkingDirectoryChanged:
		fmt.Fprintf(r.w, "pwd %s\n", e.Path)
	}
}

// CaptureOutput records command output. Bytes arriving while no command
// is open (prompt drawing, banner output) are not part of any command
// and are dropped. Only the tail of an over-limit command is kept.
func (r *Recorder) CaptureOutput(p []byte) {
	if r.current == nil {
		return
	}
	r.current.output = append(r.current.output, p...)
	if overflow := len(r.current.output) - r.captureLimit; overflow > 0 {
		r.current.output = r.current.output[overflow:]
		r.current.truncated = true
	}
}

// writeEntry emits one completed command entry. Captured output is
// stripped of ANSI escape sequences so the log stays readable.
func (r *Recorder) writeEntry(record *commandRecord, exitCode int) {
	duration := r.now().Sub(record.started).Round(time.Millisecond)

	fmt.Fprintf(r.w, "=== %s\n", record.command)
	if record.truncated {
		fmt.Fprintf(r.w, "(output truncated to last %d bytes)\n", r.captureLimit)
	}
	if output := ansi.Strip(string(record.output)); output != "" {
		fmt.Fprint(r.w, output)
		if output[len(output)-1] != '\n' {
			fmt.Fprintln(r.w)
		}
	}
	fmt.Fprintf(r.w, "=== exit %d (%s)\n", exitCode, duration)
}
