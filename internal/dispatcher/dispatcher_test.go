package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestDispatchSuccess(t *testing.T) {
	dir := t.TempDir()
	sandbox := t.TempDir()
	script := writeScript(t, dir, "agent.sh", "cat > /dev/null\necho '{\"status\":\"completed\"}'\nexit 0\n")

	d := New([]Provider{{Name: "fake", Executable: script}})
	res, provider, err := d.Dispatch(context.Background(), "do the task", sandbox, "", "")
	require.NoError(t, err)
	assert.Equal(t, "fake", provider)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.ParsedText, "completed")
}

func TestDispatchNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	sandbox := t.TempDir()
	script := writeScript(t, dir, "agent.sh", "cat > /dev/null\necho 'boom' 1>&2\nexit 1\n")

	d := New([]Provider{{Name: "fake", Executable: script}})
	res, _, err := d.Dispatch(context.Background(), "do the task", sandbox, "", "")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.ExitCode)
}

func TestDispatchMissingWorkingDirectory(t *testing.T) {
	d := New([]Provider{{Name: "fake", Executable: "/bin/true"}})
	_, _, err := d.Dispatch(context.Background(), "prompt", "/no/such/dir", "", "")
	require.Error(t, err)
}

func TestResourceExhaustedDetection(t *testing.T) {
	dir := t.TempDir()
	sandbox := t.TempDir()
	script := writeScript(t, dir, "agent.sh", "cat > /dev/null\necho 'quota exceeded' 1>&2\nexit 1\n")

	d := New([]Provider{{Name: "fake", Executable: script}})
	res, _, err := d.Dispatch(context.Background(), "prompt", sandbox, "", "")
	require.Error(t, err)
	assert.True(t, res.ResourceExhausted)
}
