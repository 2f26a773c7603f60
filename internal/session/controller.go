// Package session drives one analysis request from submission to a
// terminal state, feeding the response stream through the decoder and
// accumulator and publishing snapshots to an Observer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/client"
	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/stream"
)

const defaultBufferSize = 4096

var (
	// ErrRequestRejected is returned when the service refuses the request.
	ErrRequestRejected = errors.New("request rejected")
	// ErrTransport is returned when the connection fails before or during the stream.
	ErrTransport = errors.New("transport error")
)

// TransportError carries the answer received before the connection broke.
type TransportError struct {
	Partial string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Transport opens the response stream for a request.
type Transport interface {
	Open(ctx context.Context, req client.Request) (io.ReadCloser, error)
}

// Observer receives state snapshots. Snapshots are copies and may be kept.
type Observer interface {
	Update(st stream.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(st stream.State)

func (f ObserverFunc) Update(st stream.State) { f(st) }

// Recorder persists a completed session.
type Recorder interface {
	Record(ctx context.Context, st stream.State) error
}

// Controller runs analysis sessions. Only the most recently submitted
// session is live: submitting again cancels the previous one, and a
// superseded session no longer reaches its observer or the recorder.
type Controller struct {
	transport Transport
	recorder  Recorder
	logger    *zap.Logger
	bufSize   int
	maxLine   int

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder hands completed sessions to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithBufferSize sets the read size used for each chunk pulled from the stream.
func WithBufferSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithMaxLineSize caps how much of one unterminated line is buffered.
// Longer lines are dropped.
func WithMaxLineSize(n int) Option {
	return func(c *Controller) { c.maxLine = n }
}

func New(t Transport, opts ...Option) *Controller {
	c := &Controller{
		transport: t,
		logger:    zap.NewNop(),
		bufSize:   defaultBufferSize,
		maxLine:   stream.MaxLineSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// begin registers a new session, cancelling whatever was in flight.
func (c *Controller) begin(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return ctx, cancel, c.generation
}

func (c *Controller) end(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == gen {
		c.cancel = nil
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// Cancel aborts the in-flight session, if any. The session stays current,
// so its observer still sees it end in Failed.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Submit runs one session to completion and returns its final state.
//
// A blank url or question is not an error: nothing is sent and an Idle
// state is returned. A rejected request or a broken stream ends in Failed
// and returns an error wrapping ErrRequestRejected or ErrTransport; any
// answer text already received stays in the returned state.
func (c *Controller) Submit(ctx context.Context, url, question string, obs Observer) (stream.State, error) {
	url = strings.TrimSpace(url)
	question = strings.TrimSpace(question)
	if url == "" || question == "" {
		return stream.State{URL: url, Question: question, Status: stream.Idle}, nil
	}

	ctx, cancel, gen := c.begin(ctx)
	defer cancel()
	defer c.end(gen)

	r := &run{
		ctrl:   c,
		gen:    gen,
		obs:    obs,
		acc:    stream.NewAccumulator(url, question),
		logger: c.logger.With(zap.Uint64("session", gen), zap.String("url", url)),
	}
	return r.execute(ctx)
}

// run is the state of one Submit call.
type run struct {
	ctrl   *Controller
	gen    uint64
	obs    Observer
	acc    *stream.Accumulator
	logger *zap.Logger
}

func (r *run) notify() {
	if r.obs == nil || !r.ctrl.current(r.gen) {
		return
	}
	r.obs.Update(r.acc.State())
}

func (r *run) execute(ctx context.Context) (stream.State, error) {
	r.acc.Begin()
	r.notify()
	r.logger.Debug("session started")

	st := r.acc.State()
	body, err := r.ctrl.transport.Open(ctx, client.Request{URL: st.URL, Question: st.Question})
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) {
			return r.fail(fmt.Sprintf("HTTP error! status: %d", se.StatusCode), fmt.Errorf("%w: %w", ErrRequestRejected, err))
		}
		return r.fail(err.Error(), &TransportError{Err: err})
	}
	defer func() {
		if err := body.Close(); err != nil {
			r.logger.Debug("failed to close response body", zap.Error(err))
		}
	}()

	dec := stream.NewDecoderSize(r.ctrl.maxLine)
	buf := make([]byte, r.ctrl.bufSize)
	overflows := 0
	done := ctx.Done()

	for {
		select {
		case <-done:
			return r.fail(ctx.Err().Error(), &TransportError{Partial: r.acc.State().Answer, Err: ctx.Err()})
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			r.consume(dec.Feed(buf[:n]))
			if dec.Overflows() > overflows {
				overflows = dec.Overflows()
				r.logger.Warn("dropping over-long line", zap.Int("limit", r.ctrl.maxLine), zap.Int("dropped", overflows))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.fail(err.Error(), &TransportError{Partial: r.acc.State().Answer, Err: err})
		}
	}

	if pending := dec.Pending(); len(pending) > 0 {
		r.logger.Debug("dropping unterminated line at end of stream", zap.Int("bytes", len(pending)))
	}

	r.acc.Complete()
	r.notify()
	final := r.acc.State()
	r.logger.Debug("session completed",
		zap.Int("frames", final.Frames),
		zap.Int("skipped", final.Skipped),
		zap.Bool("metrics", final.MetricsReceived))

	if r.ctrl.recorder != nil && r.ctrl.current(r.gen) {
		if err := r.ctrl.recorder.Record(ctx, final); err != nil {
			r.logger.Warn("failed to record session", zap.Error(err))
		}
	}
	return final, nil
}

// consume applies frames in arrival order, notifying after each change.
func (r *run) consume(frames []stream.Frame) {
	for _, f := range frames {
		changed, err := r.acc.Apply(f)
		if err != nil {
			r.logger.Warn("skipping malformed frame", zap.Error(err))
			continue
		}
		if changed {
			r.notify()
		}
	}
}

func (r *run) fail(msg string, err error) (stream.State, error) {
	r.acc.Fail(msg)
	r.notify()
	r.logger.Debug("session failed", zap.Error(err))
	return r.acc.State(), err
}
