package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/stream"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return s
}

func completed(answer string, metrics *stream.Metrics) stream.State {
	st := stream.State{URL: "https://example.com", Question: "What is it?", Answer: answer, LatestMetrics: metrics}
	st.MetricsReceived = metrics != nil
	st.Complete()
	return st
}

func TestRecord_StoresCompletedSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, completed("first", &stream.Metrics{RelevanceScore: 0.87654, Source: "Web Page"})))
	require.NoError(t, s.Record(ctx, completed("second", nil)))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "second", entries[0].Answer)
	assert.Nil(t, entries[0].RelevanceScore)
	assert.Empty(t, entries[0].Source)

	assert.Equal(t, "first", entries[1].Answer)
	require.NotNil(t, entries[1].RelevanceScore)
	assert.Equal(t, 0.87654, *entries[1].RelevanceScore)
	assert.Equal(t, "Web Page", entries[1].Source)
	assert.Equal(t, "https://example.com", entries[1].URL)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
}

func TestRecord_IgnoresUnfinishedSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	failed := stream.State{URL: "u", Question: "q", Answer: "Hello wor"}
	failed.Fail("connection reset")
	require.NoError(t, s.Record(ctx, failed))
	require.NoError(t, s.Record(ctx, stream.State{URL: "u", Question: "q", Status: stream.Streaming}))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestList_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, a := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, completed(a, nil)))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Answer)
	assert.Equal(t, "b", entries[1].Answer)
}

func TestGet_ByIDAndPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Add(ctx, Entry{ID: "abc12345-0000-0000-0000-000000000000", URL: "u", Question: "q", Answer: "x"})
	require.NoError(t, err)
	_, err = s.Add(ctx, Entry{ID: "abd00000-0000-0000-0000-000000000000", URL: "u", Question: "q", Answer: "y"})
	require.NoError(t, err)

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Answer)

	got, err = s.Get(ctx, "ABC1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)

	_, err = s.Get(ctx, "ab")
	assert.True(t, errors.Is(err, ErrAmbiguous))

	_, err = s.Get(ctx, "ffff")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Get(ctx, "%")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, completed("a", nil)))
	require.NoError(t, s.Record(ctx, completed("b", nil)))

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntry_State(t *testing.T) {
	score := 0.42
	st := Entry{URL: "u", Question: "q", Answer: "a", RelevanceScore: &score, Source: "Web Search"}.State()

	assert.Equal(t, stream.Completed, st.Status)
	assert.True(t, st.MetricsReceived)
	assert.Equal(t, &stream.Metrics{RelevanceScore: 0.42, Source: "Web Search"}, st.LatestMetrics)
	assert.Empty(t, st.Notice)

	st = Entry{URL: "u", Question: "q", Answer: "a"}.State()
	assert.Equal(t, stream.NoticeNoMetrics, st.Notice)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(context.Background(), Entry{URL: "u", Question: "q", Answer: "kept"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Answer)
}
