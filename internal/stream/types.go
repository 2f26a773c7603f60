package stream

import (
	"bytes"
	"errors"
	"fmt"
)

// Prefix marks a protocol event line. Lines without it are ignored.
const Prefix = "data: "

// NoticeNoMetrics is recorded when a stream completes before any metrics arrive.
const NoticeNoMetrics = "Analysis completed without metrics"

var prefix = []byte(Prefix)

// ErrMalformedFrame reports a data line whose payload could not be decoded.
// It is recoverable: the frame is skipped and the stream continues.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one complete, newline-terminated "data: " line.
type Frame struct {
	line []byte
}

// NewFrame wraps a raw line (without its trailing newline).
func NewFrame(line string) Frame {
	return Frame{line: []byte(line)}
}

// Line returns the raw line, prefix included.
func (f Frame) Line() string {
	return string(f.line)
}

// Data returns the payload with the "data: " prefix stripped.
func (f Frame) Data() []byte {
	return bytes.TrimPrefix(f.line, prefix)
}

// Metrics is the quality/provenance snapshot sent alongside an answer.
type Metrics struct {
	RelevanceScore float64 `json:"relevance_score"`
	Source         string  `json:"source"`
}

// Payload is the decoded document carried by a frame. Both fields are optional.
type Payload struct {
	Answer  *string  `json:"answer,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// FrameError describes a frame that was skipped.
type FrameError struct {
	Line string
	Err  error
}

func (e *FrameError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:77] + "..."
	}
	return fmt.Sprintf("malformed frame %q: %v", line, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Is makes every FrameError match ErrMalformedFrame.
func (e *FrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

// Status is the lifecycle stage of a session.
type Status int

const (
	Idle Status = iota
	Streaming
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further updates will follow.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// State is the client-side view of one analysis request.
type State struct {
	URL      string
	Question string

	Answer          string
	LatestMetrics   *Metrics
	MetricsReceived bool

	Status Status
	Err    string
	Notice string

	// Frames counts applied frames, Skipped counts malformed ones.
	Frames  int
	Skipped int
}

// Snapshot returns a copy that shares no mutable data with s.
func (s State) Snapshot() State {
	if s.LatestMetrics != nil {
		m := *s.LatestMetrics
		s.LatestMetrics = &m
	}
	return s
}

// Complete marks the stream as ended normally.
func (s *State) Complete() {
	s.Status = Completed
	if !s.MetricsReceived {
		s.Notice = NoticeNoMetrics
	}
}

// Fail marks the session as failed. The partial answer is kept.
func (s *State) Fail(msg string) {
	s.Status = Failed
	s.Err = msg
}
