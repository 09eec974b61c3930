// Package marker defines the wire form of shell command lifecycle events:
// OSC escape sequences multiplexed into the shell's own output stream.
// Terminal renderers ignore them, so they are invisible to the user, while
// a host reading the PTY master can recognize and strip them.
package marker

import (
	"fmt"
	"io"
	"strconv"
)

// Channel is the OSC parameter that distinguishes shellmark markers from
// every other escape sequence on the stream. All dialect scripts and the
// decoder agree on this single value.
const Channel = 6973

// Wire tags for the three event types.
const (
	TagStart = "START"
	TagEnd   = "END"
	TagPWD   = "PWD"
)

const (
	// ESC and BEL delimit a marker: ESC ] <channel> ; <tag> [; <payload>] BEL.
	ESC = 0x1B
	BEL = 0x07
)

// Event is one command lifecycle event. Exactly three types implement it:
// CommandStart, CommandEnd, and WorkingDirectoryChanged.
type Event interface {
	// Tag returns the event's wire tag.
	Tag() string
}

// CommandStart signals that the shell is about to run a command. Command
// holds the literal command text; it may be empty in dialects that cannot
// observe the text before execution.
type CommandStart struct {
	Command string
}

// CommandEnd signals that the command just finished. ExitCode is the
// best-effort numeric status, normalized by the emitting dialect: 0 for
// success, the raw non-zero code when available, 1 otherwise.
type CommandEnd struct {
	ExitCode int
}

// WorkingDirectoryChanged reports the working directory as of the moment
// the next prompt is about to be shown. The command itself may have
// changed the directory; this reflects the result, not the starting point.
type WorkingDirectoryChanged struct {
	Path string
}

func (CommandStart) Tag() string            { return TagStart }
func (CommandEnd) Tag() string              { return TagEnd }
func (WorkingDirectoryChanged) Tag() string { return TagPWD }

// Encode serializes an event into a single self-delimited marker. Encoding
// never fails for the three event types; an unknown Event implementation
// yields nil. Payload text containing the BEL terminator corrupts framing —
// a documented protocol limitation, not a runtime error.
func Encode(event Event) []byte {
	switch e := event.(type) {
	case CommandStart:
		return encode(TagStart, e.Command)
	case CommandEnd:
		return encode(TagEnd, strconv.Itoa(e.ExitCode))
	case WorkingDirectoryChanged:
		return encode(TagPWD, e.Path)
	}
	return nil
}

// encode builds ESC ] channel ; tag [; payload] BEL. An empty payload
// omits the second separator, so CommandStart with unavailable command
// text serializes as a bare START tag.
func encode(tag, payload string) []byte {
	b := make([]byte, 0, len(tag)+len(payload)+10)
	b = append(b, ESC, ']')
	b = strconv.AppendInt(b, Channel, 10)
	b = append(b, ';')
	b = append(b, tag...)
	if payload != "" {
		b = append(b, ';')
		b = append(b, payload...)
	}
	b = append(b, BEL)
	return b
}

// Emitter writes encoded markers to a stream. Each Emit is a single Write
// call with no intermediate buffering, so the marker reaches the stream
// before any bytes the caller writes afterwards. The zero value is not
// usable; create one with NewEmitter.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates an emitter that writes markers to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit encodes the event and writes it to the underlying stream.
func (e *Emitter) Emit(event Event) error {
	data := Encode(event)
	if data == nil {
		return fmt.Errorf("unknown event type %T", event)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}
