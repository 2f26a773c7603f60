package stream

import "encoding/json"

// DecodePayload decodes the JSON document carried by a frame.
func DecodePayload(f Frame) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(f.Data(), &p); err != nil {
		return Payload{}, &FrameError{Line: f.Line(), Err: err}
	}
	return p, nil
}

// Apply folds a decoded payload into s and reports whether s changed.
// Answer fragments are appended, metrics replace the previous snapshot.
func Apply(s *State, p Payload) bool {
	changed := false
	if p.Answer != nil && *p.Answer != "" {
		s.Answer += *p.Answer
		s.Status = Streaming
		changed = true
	}
	if p.Metrics != nil {
		m := *p.Metrics
		s.LatestMetrics = &m
		s.MetricsReceived = true
		changed = true
	}
	return changed
}

// Accumulator owns the State of a single session.
type Accumulator struct {
	state State
}

func NewAccumulator(url, question string) *Accumulator {
	return &Accumulator{state: State{URL: url, Question: question, Status: Idle}}
}

// Apply decodes f and folds it into the session state. A malformed frame
// leaves the state untouched apart from the skip counter, and the returned
// error matches ErrMalformedFrame.
func (a *Accumulator) Apply(f Frame) (bool, error) {
	p, err := DecodePayload(f)
	if err != nil {
		a.state.Skipped++
		return false, err
	}
	a.state.Frames++
	return Apply(&a.state, p), nil
}

// Begin moves the session into Streaming.
func (a *Accumulator) Begin() {
	a.state.Status = Streaming
}

func (a *Accumulator) Complete() {
	a.state.Complete()
}

func (a *Accumulator) Fail(msg string) {
	a.state.Fail(msg)
}

// State returns a snapshot of the current state.
func (a *Accumulator) State() State {
	return a.state.Snapshot()
}
