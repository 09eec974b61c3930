// Package decoder recognizes shellmark markers in a raw PTY byte stream,
// strips them from the rendered output, and reconstructs the sequence of
// command lifecycle events they encode. Everything that is not a complete
// marker — other escape sequences, raw binary, markers on a foreign
// channel — passes through byte-for-byte.
package decoder

import (
	"strconv"

	"github.com/shellmark/shellmark/pkg/marker"
)

// maxMarkerLength bounds a marker candidate to guard against unbounded
// buffering when a stream happens to contain ESC ] 6973 ; followed by
// data that never terminates. A candidate that grows past this limit is
// reclassified as ordinary output.
const maxMarkerLength = 8 * 1024

// maxTagLength is the longest wire tag ("START").
const maxTagLength = 5

// channelPrefix is the byte sequence that must follow ESC for a marker
// on the shellmark channel: "]6973;".
var channelPrefix = []byte("]" + strconv.Itoa(marker.Channel) + ";")

// Handler receives the demultiplexed stream. HandleOutput is called with
// marker-free output in stream order relative to HandleEvent calls, so a
// command's output is delivered between its START and END events. The
// byte slice passed to HandleOutput is only valid for the duration of
// the call.
type Handler interface {
	HandleOutput(p []byte)
	HandleEvent(event marker.Event)
}

// Decoder is a streaming marker scanner. Marker sequences split across
// arbitrary Feed boundaries decode correctly: an incomplete candidate at
// the end of a chunk is held back, not rendered, until the next chunk
// resolves it one way or the other.
//
// A Decoder is driven by a single read loop and is not safe for
// concurrent use.
type Decoder struct {
	handler Handler

	// held is a partial marker candidate carried between feeds. It
	// always starts with ESC and is shorter than maxMarkerLength.
	held []byte
}

// New creates a decoder that dispatches to the given handler.
func New(handler Handler) *Decoder {
	return &Decoder{handler: handler}
}

// Feed scans a chunk of raw stream bytes, dispatching ordinary output
// and decoded events to the handler in stream order.
func (d *Decoder) Feed(p []byte) {
	data := p
	if len(d.held) > 0 {
		data = append(d.held, p...)
		d.held = nil
	}

	start := 0
	i := 0
	for i < len(data) {
		if data[i] != marker.ESC {
			i++
			continue
		}
		event, length, status := tryMarker(data[i:])
		switch status {
		case fullMatch:
			if i > start {
				d.handler.HandleOutput(data[start:i])
			}
			if event != nil {
				d.handler.HandleEvent(event)
			}
			i += length
			start = i
		case partialMatch:
			if i > start {
				d.handler.HandleOutput(data[start:i])
			}
			// Copy: data may alias a read buffer the caller reuses.
			d.held = append([]byte(nil), data[i:]...)
			return
		default:
			// Not ours. The ESC byte is ordinary output; keep
			// scanning right after it.
			i++
		}
	}
	if start < len(data) {
		d.handler.HandleOutput(data[start:])
	}
}

// Flush releases any held marker candidate as ordinary output. Call at
// end of stream so a trailing partial candidate is not silently dropped.
func (d *Decoder) Flush() {
	if len(d.held) > 0 {
		d.handler.HandleOutput(d.held)
		d.held = nil
	}
}

type matchStatus int

const (
	noMatch matchStatus = iota
	partialMatch
	fullMatch
)

// tryMarker examines data, which begins with ESC, for a complete marker.
// fullMatch returns the decoded event and the candidate length in bytes;
// the event is nil when the marker is well-formed but carries an
// unusable payload (it is still stripped from the output). partialMatch
// means data is a proper prefix of a possible marker and ended before
// the terminator.
func tryMarker(data []byte) (marker.Event, int, matchStatus) {
	i := 1
	for _, want := range channelPrefix {
		if i >= len(data) {
			return nil, 0, partialMatch
		}
		if data[i] != want {
			return nil, 0, noMatch
		}
		i++
	}

	tagStart := i
	for {
		if i >= len(data) {
			return nil, 0, partialMatch
		}
		if data[i] == ';' || data[i] == marker.BEL {
			break
		}
		if i-tagStart >= maxTagLength {
			return nil, 0, noMatch
		}
		i++
	}
	tag := string(data[tagStart:i])
	switch tag {
	case marker.TagStart, marker.TagEnd, marker.TagPWD:
	default:
		return nil, 0, noMatch
	}

	var payload []byte
	hasPayload := false
	if data[i] == ';' {
		i++
		payloadStart := i
		for {
			if i >= len(data) {
				if i >= maxMarkerLength {
					return nil, 0, noMatch
				}
				return nil, 0, partialMatch
			}
			if data[i] == marker.BEL {
				break
			}
			if i >= maxMarkerLength {
				return nil, 0, noMatch
			}
			i++
		}
		payload = data[payloadStart:i]
		hasPayload = true
	}

	return buildEvent(tag, payload, hasPayload), i + 1, fullMatch
}

// buildEvent converts a matched tag and payload into an event. Returns
// nil for payloads the protocol cannot interpret (for example a
// non-numeric exit code); the host treats these defensively by dropping
// the event rather than failing.
func buildEvent(tag string, payload []byte, hasPayload bool) marker.Event {
	switch tag {
	case marker.TagStart:
		// Command text is optional: dialects that cannot observe it
		// emit a bare START.
		return marker.CommandStart{Command: string(payload)}
	case marker.TagEnd:
		if !hasPayload {
			return nil
		}
		code, err := strconv.Atoi(string(payload))
		if err != nil || code < 0 {
			return nil
		}
		return marker.CommandEnd{ExitCode: code}
	case marker.TagPWD:
		if !hasPayload {
			return nil
		}
		return marker.WorkingDirectoryChanged{Path: string(payload)}
	}
	return nil
}
