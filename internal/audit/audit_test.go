package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAuditAssignsIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "proj", nil)
	require.NoError(t, err)

	require.NoError(t, sink.AppendAudit(Entry{Iteration: 1, Event: EventTaskCompleted, TaskID: "t-1"}))

	lines := readLines(t, filepath.Join(dir, "proj", "audit.log.jsonl"))
	require.Len(t, lines, 1)

	var got Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, EventTaskCompleted, got.Event)
}

func TestAppendAuditIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "proj", nil)
	require.NoError(t, err)

	require.NoError(t, sink.AppendAudit(Entry{Iteration: 1, Event: EventStateTransition}))
	require.NoError(t, sink.AppendAudit(Entry{Iteration: 2, Event: EventTaskCompleted}))

	lines := readLines(t, filepath.Join(dir, "proj", "audit.log.jsonl"))
	require.Len(t, lines, 2)

	var first, second Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, EventStateTransition, first.Event)
	assert.Equal(t, EventTaskCompleted, second.Event)
}

func TestAppendPromptTruncatesOversizedContent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "proj", nil)
	require.NoError(t, err)

	content := strings.Repeat("x", truncationLimit+500)
	require.NoError(t, sink.AppendPrompt(KindPrompt, "t-1", content))

	lines := readLines(t, filepath.Join(dir, "proj", "logs", "prompts.log.jsonl"))
	require.Len(t, lines, 1)

	var got PromptEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.True(t, got.Truncated)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, len(content), got.Metadata.OriginalLength)
	wantMarker := fmt.Sprintf("\n\n[TRUNCATED: %d bytes total]", len(content))
	assert.True(t, strings.HasSuffix(got.Content, wantMarker))
	assert.Len(t, got.Content, truncationLimit+len(wantMarker))
}

func TestAppendPromptLeavesSmallContentUntouched(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, "proj", nil)
	require.NoError(t, err)

	require.NoError(t, sink.AppendPrompt(KindResponse, "t-1", "short response"))

	lines := readLines(t, filepath.Join(dir, "proj", "logs", "prompts.log.jsonl"))
	require.Len(t, lines, 1)

	var got PromptEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.False(t, got.Truncated)
	assert.Nil(t, got.Metadata)
	assert.Equal(t, "short response", got.Content)
}

func TestPreviewCapsAt500Chars(t *testing.T) {
	long := strings.Repeat("a", 1000)
	preview, length := Preview(long)
	assert.Equal(t, previewLimit, len(preview))
	assert.Equal(t, 1000, length)

	short := "small"
	preview, length = Preview(short)
	assert.Equal(t, short, preview)
	assert.Equal(t, len(short), length)
}

func TestSafeAppendAuditNeverPanicsOnBadPath(t *testing.T) {
	sink := &Sink{auditPath: filepath.Join(t.TempDir(), "missing-dir", "audit.log.jsonl")}
	assert.NotPanics(t, func() {
		sink.SafeAppendAudit(Entry{Event: EventHalt})
	})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), truncationLimit*2)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
