package report

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(afero.NewMemMapFs(), "logs")
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 21, 20, 1, 23, 0, time.Local)
	assert.Equal(t, "20260121_200123", Timestamp(ts))
}

func TestWriteAndReadJSON(t *testing.T) {
	w := newTestWriter(t)
	path, err := w.WriteJSON("status.json", map[string]any{"name": "<hand>", "count": 2})
	require.NoError(t, err)
	assert.Equal(t, "logs/status.json", path)

	raw, err := afero.ReadFile(w.Fs(), path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"name\": \"<hand>\"")

	exists, err := afero.Exists(w.Fs(), path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	var back map[string]any
	require.NoError(t, w.ReadJSON("status.json", &back))
	assert.InDelta(t, 2, back["count"], 0)

	err = w.ReadJSON("missing.json", &back)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLines(t *testing.T) {
	w := newTestWriter(t)
	path, err := w.WriteLines("new_images.txt", []string{"a/1.jpg", "b/2.jpg"})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(w.Fs(), "extra.txt", []byte("x\n\n  y  \n"), 0o644))
	lines, err := ReadLines(w.Fs(), "extra.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, lines)

	lines, err = ReadLines(w.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.jpg", "b/2.jpg"}, lines)
}

func TestWriteCSVWithBOM(t *testing.T) {
	w := newTestWriter(t)
	path, err := w.WriteCSV("cmp.csv", []string{"job_id", "assignee"}, [][]string{{"1", "张三"}}, CSVOptions{BOM: true})
	require.NoError(t, err)

	raw, err := afero.ReadFile(w.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "\xef\xbb\xbfjob_id,assignee\n1,张三\n", string(raw))

	path, err = w.WriteCSV("plain.csv", []string{"a"}, [][]string{{"1"}}, CSVOptions{})
	require.NoError(t, err)
	raw, err = afero.ReadFile(w.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(raw))
}

func TestAppendCSV(t *testing.T) {
	w := newTestWriter(t).Sub("reports")
	header := []string{"date", "user"}

	_, err := w.AppendCSV("summary.csv", header, [][]string{{"2026-01-20", "ann"}})
	require.NoError(t, err)
	path, err := w.AppendCSV("summary.csv", header, [][]string{{"2026-01-21", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, "logs/reports/summary.csv", path)

	raw, err := afero.ReadFile(w.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "date,user\n2026-01-20,ann\n2026-01-21,bob\n", string(raw))
}

func TestLatest(t *testing.T) {
	w := newTestWriter(t)
	_, err := w.Latest("new_images_*.txt")
	require.Error(t, err)

	for _, name := range []string{"new_images_20260101_120000.txt", "new_images_20260120_080000.txt", "new_images_20251231_235959.txt"} {
		_, err := w.WriteLines(name, []string{"x"})
		require.NoError(t, err)
	}
	latest, err := w.Latest("new_images_*.txt")
	require.NoError(t, err)
	assert.Equal(t, "logs/new_images_20260120_080000.txt", latest)
}
