package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyAll(t *testing.T, acc *Accumulator, frames []Frame) {
	t.Helper()
	for _, f := range frames {
		_, _ = acc.Apply(f)
	}
}

func TestAccumulator_AnswerAndMetrics(t *testing.T) {
	acc := NewAccumulator("https://example.com", "what?")

	for _, line := range []string{
		`data: {"answer":"Hel"}`,
		`data: {"answer":"lo"}`,
		`data: {"metrics":{"relevance_score":0.87,"source":"wiki"}}`,
	} {
		changed, err := acc.Apply(NewFrame(line))
		require.NoError(t, err)
		assert.True(t, changed)
	}

	st := acc.State()
	assert.Equal(t, "Hello", st.Answer)
	require.NotNil(t, st.LatestMetrics)
	assert.Equal(t, Metrics{RelevanceScore: 0.87, Source: "wiki"}, *st.LatestMetrics)
	assert.True(t, st.MetricsReceived)
	assert.Equal(t, Streaming, st.Status)
	assert.Equal(t, 3, st.Frames)
}

func TestAccumulator_MalformedFrameIsSkipped(t *testing.T) {
	acc := NewAccumulator("u", "q")
	_, err := acc.Apply(NewFrame(`data: {"answer":"ok","metrics":{"relevance_score":0.5,"source":"s"}}`))
	require.NoError(t, err)
	before := acc.State()

	for _, line := range []string{
		`data: {"answer":"trunc`,
		`data: not json`,
		`data: {"answer":5}`,
		`data: `,
	} {
		changed, err := acc.Apply(NewFrame(line))
		assert.False(t, changed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedFrame), line)

		var fe *FrameError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, line, fe.Line)
	}

	after := acc.State()
	assert.Equal(t, before.Answer, after.Answer)
	assert.Equal(t, before.LatestMetrics, after.LatestMetrics)
	assert.Equal(t, Streaming, after.Status)
	assert.Equal(t, 4, after.Skipped)
}

func TestAccumulator_BothFieldsInOneFrame(t *testing.T) {
	acc := NewAccumulator("u", "q")
	changed, err := acc.Apply(NewFrame(`data: {"answer":"x","metrics":{"relevance_score":0.1,"source":"Web Page"}}`))
	require.NoError(t, err)
	assert.True(t, changed)

	st := acc.State()
	assert.Equal(t, "x", st.Answer)
	assert.Equal(t, "Web Page", st.LatestMetrics.Source)
}

func TestAccumulator_NeitherFieldIsNotAnError(t *testing.T) {
	acc := NewAccumulator("u", "q")
	for _, line := range []string{`data: {}`, `data: {"other":true}`, `data: {"answer":""}`, `data: {"metrics":null}`} {
		changed, err := acc.Apply(NewFrame(line))
		require.NoError(t, err, line)
		assert.False(t, changed, line)
	}
	st := acc.State()
	assert.Empty(t, st.Answer)
	assert.False(t, st.MetricsReceived)
	assert.Equal(t, Idle, st.Status)
}

func TestAccumulator_MetricsReplacedWholesale(t *testing.T) {
	acc := NewAccumulator("u", "q")
	applyAll(t, acc, []Frame{
		NewFrame(`data: {"metrics":{"relevance_score":0.9,"source":"Web Page"}}`),
		NewFrame(`data: {"metrics":{"relevance_score":0.123456789}}`),
	})

	st := acc.State()
	assert.Equal(t, Metrics{RelevanceScore: 0.123456789}, *st.LatestMetrics)
}

func TestState_SnapshotIsIndependent(t *testing.T) {
	acc := NewAccumulator("u", "q")
	applyAll(t, acc, []Frame{NewFrame(`data: {"metrics":{"relevance_score":0.5,"source":"a"}}`)})

	snap := acc.State()
	snap.LatestMetrics.Source = "mutated"

	assert.Equal(t, "a", acc.State().LatestMetrics.Source)
}

func TestState_Complete(t *testing.T) {
	var s State
	s.Complete()
	assert.Equal(t, Completed, s.Status)
	assert.Equal(t, NoticeNoMetrics, s.Notice)

	s = State{MetricsReceived: true}
	s.Complete()
	assert.Empty(t, s.Notice)
}

func TestState_FailKeepsAnswer(t *testing.T) {
	s := State{Answer: "Hello wor", Status: Streaming}
	s.Fail("connection reset")
	assert.Equal(t, Failed, s.Status)
	assert.Equal(t, "Hello wor", s.Answer)
	assert.True(t, s.Status.Terminal())
}

func TestOnePassAndChunkedDecodingAgree(t *testing.T) {
	raw := wellFormed + "data: {broken\n: comment\n" + `data: {"answer":"!"}` + "\n" + "data: {\"answer\":\"lost\"}"

	run := func(size int) State {
		acc := NewAccumulator("u", "q")
		applyAll(t, acc, feedInChunks(raw, size))
		acc.Complete()
		return acc.State()
	}

	want := run(len(raw))
	assert.Equal(t, "Hello wörld ✓!", want.Answer)
	for _, size := range []int{1, 2, 3, 7, 13, 64} {
		assert.Equal(t, want, run(size), "chunk size %d", size)
	}
}
