package coco

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

const sampleExport = `{
  "images": [
    {"id": 1, "file_name": "images/aa__3748_session_20251210_221855_834176_0002_000000.jpg", "width": 640, "height": 480},
    {"id": 2, "file_name": "images/bb__3748_session_20251210_221855_834176_0002_000001.jpg", "width": 640, "height": 480},
    {"id": 3, "file_name": "images/cc__1001_session_20251201_101010_000001_0001_000000.jpg", "width": 640, "height": 480},
    {"id": 4, "file_name": "images/dd__frame_without_id.jpg", "width": 640, "height": 480}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 0, "bbox": [1, 2, 3, 4], "area": 12, "iscrowd": 0},
    {"id": 11, "image_id": 2, "category_id": 3, "bbox": [5, 6, 7, 8], "area": 56, "iscrowd": 0},
    {"id": 12, "image_id": 3, "category_id": 9, "bbox": [1, 1, 1, 1], "area": 1, "iscrowd": 0},
    {"id": 13, "image_id": 4, "category_id": 0, "bbox": [0, 0, 1, 1], "area": 1, "iscrowd": 0}
  ],
  "categories": [
    {"id": 3, "name": "Right hand", "supercategory": ""},
    {"id": 0, "name": "Left hand", "supercategory": ""}
  ]
}`

func loadSample(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Decode(strings.NewReader(sampleExport))
	require.NoError(t, err)
	return ds
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o600))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, ds.Images, 4)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = Decode(strings.NewReader("{"))
	require.Error(t, err)
}

func TestLabelNames(t *testing.T) {
	assert.Equal(t, []string{"Left hand", "Right hand"}, loadSample(t).LabelNames())
}

func TestGroupBySession(t *testing.T) {
	groups := GroupBySession(loadSample(t), session.LegacyParts)
	require.Len(t, groups, 2)

	g := groups["3748_session_20251210_221855"]
	require.NotNil(t, g)
	assert.Len(t, g.Images, 2)
	assert.Len(t, g.Annotations, 2)

	g = groups["1001_session_20251201_101010"]
	require.NotNil(t, g)
	assert.Len(t, g.Images, 1)
	assert.Equal(t, 12, g.Annotations[0].ID)
}

func TestServerPath(t *testing.T) {
	assert.Equal(t, "test_1000/images/x_1.jpg", ServerPath("test_1000/images/", "images/ab__x_1.jpg"))
	assert.Equal(t, "test_1000/images/x_1.jpg", ServerPath("test_1000/images", "x_1.jpg"))
	assert.Equal(t, "x_1.jpg", ServerPath("", "images/ab__x_1.jpg"))
}

func TestRemapCategories(t *testing.T) {
	cats, mapping := RemapCategories(loadSample(t).Categories)
	assert.Equal(t, []Category{{ID: 1, Name: "Left hand"}, {ID: 2, Name: "Right hand"}}, cats)
	assert.Equal(t, 1, mapping.Lookup(0))
	assert.Equal(t, 2, mapping.Lookup(3))
	assert.Equal(t, 10, mapping.Lookup(9))
}

func TestConvertWithoutFilter(t *testing.T) {
	out, stats := Convert(loadSample(t), "test_1000/images/", nil)
	assert.Equal(t, 4, stats.Images)
	assert.Equal(t, 4, stats.Annotations)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, "test_1000/images/3748_session_20251210_221855_834176_0002_000000.jpg", out.Images[0].FileName)
	assert.Equal(t, []int{1, 2, 10, 1}, []int{
		out.Annotations[0].CategoryID, out.Annotations[1].CategoryID,
		out.Annotations[2].CategoryID, out.Annotations[3].CategoryID,
	})
}

func TestConvertKeepsOnlyLoadedImages(t *testing.T) {
	ds := loadSample(t)
	loaded := map[string]struct{}{
		"test_1000/images/3748_session_20251210_221855_834176_0002_000001.jpg": {},
	}
	out, stats := Convert(ds, "test_1000/images/", loaded)
	require.Len(t, out.Images, 1)
	assert.Equal(t, 2, out.Images[0].ID)
	require.Len(t, out.Annotations, 1)
	assert.Equal(t, 11, out.Annotations[0].ID)
	assert.Equal(t, 3, stats.Skipped)

	// the input is not modified
	assert.Equal(t, "images/aa__3748_session_20251210_221855_834176_0002_000000.jpg", ds.Images[0].FileName)
	assert.Equal(t, 0, ds.Annotations[0].CategoryID)
}

func TestArchiveRoundTrip(t *testing.T) {
	out, _ := Convert(loadSample(t), "test_1000/images/", nil)
	data, err := Archive(out)
	require.NoError(t, err)

	back, err := ReadArchive(data)
	require.NoError(t, err)
	assert.Equal(t, out.Images, back.Images)
	assert.Equal(t, out.Categories, back.Categories)
	assert.Len(t, back.Annotations, 4)

	_, err = ReadArchive([]byte("not a zip"))
	require.Error(t, err)
}
