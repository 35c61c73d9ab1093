// Package sse turns upstream server-sent-event byte streams into chat completion chunks
// and formats outgoing chunks as SSE frames.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"adaptive-reasoner/internal/models"
)

const (
	defaultReadSize = 4096
	doneToken       = "[DONE]"

	// MaxEventBytes caps the size of a single undelimited event held in memory.
	MaxEventBytes = 1 << 20
)

var dataPrefix = []byte("data:")

// Decoder pulls ChatCompletionChunk events out of an SSE body.
// Bytes of an event split across reads are kept until the event is complete, and every
// event of a read is delivered before the next read is issued.
type Decoder struct {
	r       io.Reader
	buf     []byte
	scratch []byte
	eof     bool
	done    bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		buf:     make([]byte, 0, defaultReadSize),
		scratch: make([]byte, defaultReadSize),
	}
}

// Next returns the next decoded chunk. It returns io.EOF after the [DONE] terminator or when
// the upstream closes the stream, a *models.Error of KindParse when a data payload is not a
// valid chunk or an event grows past MaxEventBytes, and a *models.Error of KindNetwork when
// reading fails.
func (d *Decoder) Next() (*models.ChatCompletionChunk, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		event, ok := d.nextEvent()
		if !ok {
			if d.eof {
				d.done = true
				return nil, io.EOF
			}
			if len(d.buf) > MaxEventBytes {
				d.done = true
				return nil, models.NewParseError(fmt.Sprintf("stream event exceeds %d bytes", MaxEventBytes), nil)
			}
			if err := d.fill(); err != nil {
				d.done = true
				return nil, err
			}
			continue
		}

		payload, ok := dataPayload(event)
		if !ok || len(payload) == 0 {
			log.Debug().Bytes("event", event).Msg("sse: skipping segment without data prefix")
			continue
		}

		if isTerminator(payload) {
			d.done = true
			return nil, io.EOF
		}

		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			d.done = true
			return nil, models.NewParseError("decode stream chunk "+truncate(payload), err)
		}
		return &chunk, nil
	}
}

// fill reads once from the underlying reader into the pending buffer.
func (d *Decoder) fill() error {
	n, err := d.r.Read(d.scratch)
	if n > 0 {
		d.buf = append(d.buf, d.scratch[:n]...)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		d.eof = true
		return nil
	default:
		return models.NewNetworkError("read upstream stream", err)
	}
}

// nextEvent cuts the next complete event off the pending buffer. Once the body has ended,
// a trailing event without its blank-line delimiter is flushed as well.
func (d *Decoder) nextEvent() ([]byte, bool) {
	for {
		event, rest, ok := splitEvent(d.buf, d.eof)
		if !ok {
			return nil, false
		}
		d.buf = rest
		if len(bytes.TrimSpace(event)) == 0 {
			continue
		}
		return event, true
	}
}

func splitEvent(buf []byte, flush bool) ([]byte, []byte, bool) {
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	lf := bytes.Index(buf, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return buf[:crlf], buf[crlf+4:], true
	case lf >= 0:
		return buf[:lf], buf[lf+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

// dataPayload joins the data lines of an event. Comment and field lines other than data are
// ignored; an event without any data line reports false.
func dataPayload(event []byte) ([]byte, bool) {
	var payload [][]byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload = append(payload, bytes.TrimSpace(line[len(dataPrefix):]))
	}
	if len(payload) == 0 {
		return nil, false
	}
	return bytes.Join(payload, []byte("\n")), true
}

// isTerminator reports whether payload is the [DONE] marker. A well-formed JSON chunk whose
// text happens to contain the marker is not a terminator.
func isTerminator(payload []byte) bool {
	return bytes.Contains(payload, []byte(doneToken)) && !gjson.ValidBytes(payload)
}

func truncate(payload []byte) string {
	const limit = 256
	if len(payload) > limit {
		return string(payload[:limit]) + "..."
	}
	return string(payload)
}
