package migrate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/testutil"
)

const export = `{
  "images": [
    {"id": 1, "file_name": "images/aa__3748_session_20251210_221855_834176_0002_000000.jpg", "width": 640, "height": 480},
    {"id": 2, "file_name": "images/bb__3748_session_20251210_221855_834176_0002_000001.jpg", "width": 640, "height": 480},
    {"id": 3, "file_name": "images/cc__1001_session_20251201_101010_000001_0001_000000.jpg", "width": 640, "height": 480}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 0, "bbox": [1, 2, 3, 4], "area": 12, "iscrowd": 0},
    {"id": 11, "image_id": 2, "category_id": 3, "bbox": [5, 6, 7, 8], "area": 56, "iscrowd": 0},
    {"id": 12, "image_id": 3, "category_id": 3, "bbox": [1, 1, 1, 1], "area": 1, "iscrowd": 0}
  ],
  "categories": [
    {"id": 3, "name": "Right hand", "supercategory": ""},
    {"id": 0, "name": "Left hand", "supercategory": ""}
  ]
}`

const (
	prefix   = "hs/export"
	session1 = "1001_session_20251201_101010"
	session2 = "3748_session_20251210_221855"
	file1    = prefix + "/1001_session_20251201_101010_000001_0001_000000.jpg"
	file2    = prefix + "/3748_session_20251210_221855_834176_0002_000000.jpg"
	file3    = prefix + "/3748_session_20251210_221855_834176_0002_000001.jpg"
)

func loadExport(t *testing.T) *coco.Dataset {
	t.Helper()
	d, err := coco.Decode(strings.NewReader(export))
	require.NoError(t, err)
	return d
}

func fastRequestWait() cvat.RequestWait {
	return cvat.RequestWait{Interval: time.Millisecond, Attempts: 3}
}

func TestPrepare(t *testing.T) {
	plan, err := Prepare(loadExport(t), prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{session1, session2}, plan.Files.Sessions)
	assert.Equal(t, [][]string{{file1}, {file2, file3}}, plan.Files.Jobs)
	assert.Empty(t, plan.Unmapped)
}

func TestPrepareWithoutSessions(t *testing.T) {
	d := &coco.Dataset{Images: []coco.Image{{ID: 1, FileName: "frame.jpg"}}}
	_, err := Prepare(d, prefix)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRun(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	logs := report.NewWriter(afero.NewMemMapFs(), "logs")

	var created cvat.TaskSpec
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks"),
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&created))
			return httpmock.NewJsonResponse(http.StatusCreated, cvat.Task{ID: 70, Name: created.Name})
		})
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks/70/data"),
		testutil.JSON(t, http.StatusAccepted, cvat.RequestID{RQID: "rq-data"}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/70"),
		testutil.JSON(t, http.StatusOK, cvat.Task{ID: 70, Size: 3, Status: cvat.TaskStatusAnnotation}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Job{ID: 702, StartFrame: 1, StopFrame: 2},
			cvat.Job{ID: 701, StartFrame: 0, StopFrame: 0},
		)))
	// the second image of session 2 failed to load
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/70/data/meta"),
		testutil.JSON(t, http.StatusOK, testutil.Frames(file1, file2)))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/requests"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Request{ID: "rq-import", Status: cvat.RequestFinished, Operation: cvat.Operation{Type: cvat.OperationImportAnnotations}},
			cvat.Request{ID: "rq-data", Status: cvat.RequestFinished, Operation: cvat.Operation{Type: cvat.OperationCreateTask}},
		)))

	var uploaded *coco.Dataset
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks/70/annotations"),
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, cvat.FormatCOCO, req.URL.Query().Get("format"))
			file, _, err := req.FormFile("annotation_file")
			require.NoError(t, err)
			defer file.Close()
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			uploaded, err = coco.ReadArchive(data)
			require.NoError(t, err)
			return httpmock.NewJsonResponse(http.StatusAccepted, cvat.RequestID{RQID: "rq-import"})
		})

	m := New(client, logs, Config{
		TaskName:       "HumanSignal import",
		CloudStorageID: 3000,
		Prefix:         prefix,
		ImageQuality:   70,
		Wait:           cvat.DataWait{Interval: time.Millisecond, Timeout: time.Second},
		RequestWait:    fastRequestWait(),
	}, nil)

	res, err := m.Run(context.Background(), loadExport(t))
	require.NoError(t, err)

	assert.Equal(t, "HumanSignal import", created.Name)
	require.Len(t, created.Labels, 2)
	assert.Equal(t, "Left hand", created.Labels[0].Name)
	assert.Equal(t, LabelColor, created.Labels[0].Color)

	assert.Equal(t, 70, res.TaskID)
	assert.Equal(t, 2, res.Jobs)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 2, res.Converted.Images)
	assert.Equal(t, 1, res.Converted.Skipped)
	require.NotNil(t, res.Import)
	assert.Equal(t, "rq-import", res.Import.ID)

	require.NotNil(t, uploaded)
	require.Len(t, uploaded.Images, 2)
	assert.Equal(t, file2, uploaded.Images[0].FileName)
	assert.Equal(t, file1, uploaded.Images[1].FileName)
	require.Len(t, uploaded.Annotations, 2)
	assert.Equal(t, 1, uploaded.Annotations[0].CategoryID)
	assert.Equal(t, 2, uploaded.Annotations[1].CategoryID)

	var dbg debugRequest
	require.NoError(t, logs.ReadJSON("debug_request_70.json", &dbg))
	assert.Equal(t, 3, dbg.ServerFilesCount)
	assert.Equal(t, 0, dbg.JobFileMappingCount)
	assert.Equal(t, []string{session1, session2}, dbg.SessionNames)

	var entries []mapping.Entry
	require.NoError(t, logs.ReadJSON(mapping.FileName(70), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 701, entries[0].JobID)
	assert.Equal(t, session1, entries[0].SessionID)
	assert.Equal(t, 2, entries[1].FrameCount)
	assert.Nil(t, entries[1].ImageCount)
}

func TestUploadFailedImport(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks/9/annotations"),
		testutil.JSON(t, http.StatusAccepted, cvat.RequestID{RQID: "rq"}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/requests"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Request{ID: "rq", Status: cvat.RequestFailed, Message: "Could not match item id",
				Operation: cvat.Operation{Type: cvat.OperationImportAnnotations}},
		)))

	d, _ := coco.Convert(loadExport(t), prefix, nil)
	rq, err := Upload(context.Background(), client, 9, d, fastRequestWait())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImport))
	require.NotNil(t, rq)
	assert.Equal(t, cvat.RequestFailed, rq.Status)
}

func TestUploadRejectsUnmatchedFrames(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	logs := report.NewWriter(afero.NewMemMapFs(), "logs")
	m := New(client, logs, Config{Prefix: prefix, RequestWait: fastRequestWait()}, nil)

	res := &Result{TaskID: 70}
	loaded := map[string]struct{}{prefix + "/unrelated_frame.jpg": {}}
	err := m.uploadAnnotations(context.Background(), res, loadExport(t), loaded)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, 0, res.Converted.Images)
	assert.Equal(t, 3, res.Converted.Skipped)
	assert.Nil(t, res.Import)
	assert.Equal(t, 0, mock.GetTotalCallCount())
}

func TestJobMapping(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	logs := report.NewWriter(afero.NewMemMapFs(), "logs")
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Job{ID: 12, StartFrame: 1, StopFrame: 2},
			cvat.Job{ID: 11, StartFrame: 0, StopFrame: 0},
			cvat.Job{ID: 13, StartFrame: 3, StopFrame: 3},
		)))

	entries, path, err := JobMapping(context.Background(), client, logs, 55, loadExport(t))
	require.NoError(t, err)
	assert.Equal(t, "logs/job_session_mapping_55.json", path)
	require.Len(t, entries, 2)
	assert.Equal(t, 11, entries[0].JobID)
	assert.Equal(t, session1, entries[0].SessionID)
	require.NotNil(t, entries[1].ImageCount)
	assert.Equal(t, 2, *entries[1].ImageCount)
}
