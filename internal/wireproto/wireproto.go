// Package wireproto implements the length-prefixed JSON frame stream the
// pool and a worker process speak over the worker's stdin/stdout
// (spec.md §4.D/§9 Design Note: "length-prefixed message stream over
// stdio").
package wireproto

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cboone/tact/internal/suite"
)

// maxFrameSize guards against a corrupt length prefix causing an
// unbounded allocation.
const maxFrameSize = 64 << 20

// SuiteSummary is the minimal ancestor identity/options the orchestrator
// sends a worker alongside a testId: enough to spawn the right shell
// with the right size/env/cwd and to key the worker's import cache,
// without re-sending the whole suite tree. Describe nodes are omitted
// (spec.md §4.C) because EffectiveOptions has already folded their
// contribution into the sent options.
type SuiteSummary struct {
	ProjectTitle     string            `json:"projectTitle"`
	FileTitle        string            `json:"fileTitle"`
	FileRow          int               `json:"fileRow"`
	EffectiveOptions suite.TestOptions `json:"effectiveOptions"`
}

// Request is the single RPC kind a pool call sends a worker:
// runTest(testId, suiteSummary, sourcePath).
type Request struct {
	TestID         string       `json:"testId"`
	SuiteSummary   SuiteSummary `json:"suiteSummary"`
	SourcePath     string       `json:"sourcePath"`
	TimeoutMS      int64        `json:"timeoutMs"`
	UpdateSnapshot bool         `json:"updateSnapshot"`
	// ZDOTDIR is the isolated zsh dotfile directory the orchestrator's
	// pre-run shell.Prepare hook already wrote to disk (spec.md §6), for
	// the worker to export via shell.Shell.Env/Executable. Empty for any
	// shell other than zsh, or if this run never prepared zsh.
	ZDOTDIR string `json:"zdotdir,omitempty"`
}

// EventKind discriminates the streamed response events a worker emits
// for one runTest call (spec.md §4.D).
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventSnapshot EventKind = "snapshot"
	EventError    EventKind = "error"
	EventDone     EventKind = "done"
)

// Event is one streamed response frame. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind       EventKind             `json:"kind"`
	T0         int64                 `json:"t0,omitempty"`         // EventStarted: unix ms, authoritative start time
	Status     *suite.SnapshotStatus `json:"status,omitempty"`     // EventSnapshot
	Message    string                `json:"message,omitempty"`    // EventError: stringified stack, or message on fallback
	DurationMS int64                 `json:"durationMs,omitempty"` // EventError, EventDone
}

// IsTerminal reports whether this event ends a runTest call.
func (e Event) IsTerminal() bool {
	return e.Kind == EventError || e.Kind == EventDone
}

// Writer frames outgoing values as a 4-byte big-endian length prefix
// followed by their JSON encoding.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame marshals v and writes it as one length-prefixed frame.
func (fw *Writer) WriteFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wireproto: marshal: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wireproto: write length: %w", err)
	}
	if _, err := fw.w.Write(b); err != nil {
		return fmt.Errorf("wireproto: write payload: %w", err)
	}
	return nil
}

// Reader reads frames written by a Writer.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until one full frame arrives and unmarshals it into v.
// Returns io.EOF if the stream closed cleanly between frames (a worker
// exiting normally after its last response).
func (fr *Reader) ReadFrame(v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("wireproto: read frame: %w", io.EOF)
		}
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return fmt.Errorf("wireproto: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return fmt.Errorf("wireproto: read payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("wireproto: unmarshal: %w", err)
	}
	return nil
}
