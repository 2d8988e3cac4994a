package wireproto

import (
	"bytes"
	"io"
	"testing"

	"github.com/cboone/tact/internal/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundtrips(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	req := Request{
		TestID:     "[proj] > app_test:3:3 > does a thing",
		SourcePath: "/cache/app_test.so",
		TimeoutMS:  2000,
		SuiteSummary: SuiteSummary{
			ProjectTitle: "proj",
			FileTitle:    "app_test",
			FileRow:      3,
		},
	}
	require.NoError(t, w.WriteFrame(req))

	r := NewReader(&buf)
	var got Request
	require.NoError(t, r.ReadFrame(&got))
	assert.Equal(t, req, got)
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	events := []Event{
		{Kind: EventStarted, T0: 1000},
		{Kind: EventSnapshot, Status: &suite.SnapshotStatus{Name: "s1", Outcome: suite.SnapshotMatched}},
		{Kind: EventDone, DurationMS: 42},
	}
	for _, e := range events {
		require.NoError(t, w.WriteFrame(e))
	}

	r := NewReader(&buf)
	for _, want := range events {
		var got Event
		require.NoError(t, r.ReadFrame(&got))
		assert.Equal(t, want, got)
	}
}

func TestReadFrameReturnsEOFOnCleanClose(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	var e Event
	err := r.ReadFrame(&e)
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventIsTerminal(t *testing.T) {
	assert.True(t, Event{Kind: EventDone}.IsTerminal())
	assert.True(t, Event{Kind: EventError}.IsTerminal())
	assert.False(t, Event{Kind: EventStarted}.IsTerminal())
	assert.False(t, Event{Kind: EventSnapshot}.IsTerminal())
}
