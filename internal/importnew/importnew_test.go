package importnew

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/assign"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/testutil"
)

func newImporter(t *testing.T, client *cvat.Client) (*Importer, *report.Writer) {
	t.Helper()
	logs := report.NewWriter(afero.NewMemMapFs(), "logs")
	im := New(client, logs, Config{
		CloudStorageID: 4837,
		Labels:         []cvat.LabelSpec{{Name: "Left hand", Color: "#ff00ff"}},
		UseMapping:     true,
		ImageQuality:   70,
		Assignees:      []assign.Person{{ID: 7, Name: "Ann"}, {ID: 8, Name: "Bob"}},
		Wait:           cvat.DataWait{Interval: time.Millisecond, Timeout: time.Second},
	}, nil)
	im.now = func() time.Time { return time.Date(2026, 1, 21, 9, 0, 0, 0, time.Local) }
	return im, logs
}

func TestRunImportsNewestList(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	im, logs := newImporter(t, client)

	_, err := logs.WriteLines("new_images_20260101_000000.txt", []string{"old/session_x/0001/f.jpg"})
	require.NoError(t, err)
	_, err = logs.WriteLines("new_images_20260120_000000.txt", []string{
		"23dc/session_2/0001/down/f1.jpg",
		"23dc/session_1/0001/down/f1.jpg",
		"23dc/session_1/0001/down/f2.jpg",
		"misc/frame.jpg",
	})
	require.NoError(t, err)

	var created cvat.TaskSpec
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks"),
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&created))
			return httpmock.NewJsonResponse(http.StatusCreated, cvat.Task{ID: 90, Name: created.Name})
		})
	var attached cvat.DataRequest
	mock.RegisterResponder(http.MethodPost, testutil.URL("/api/tasks/90/data"),
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&attached))
			return httpmock.NewJsonResponse(http.StatusAccepted, cvat.RequestID{RQID: "rq"})
		})
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/90"),
		testutil.JSON(t, http.StatusOK, cvat.Task{ID: 90, Size: 4}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Job{ID: 903, StartFrame: 3, StopFrame: 3},
			cvat.Job{ID: 901, StartFrame: 0, StopFrame: 1},
			cvat.Job{ID: 902, StartFrame: 2, StopFrame: 2},
		)))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/requests"),
		testutil.JSON(t, http.StatusOK, testutil.Page[cvat.Request]()))

	assigned := map[int]int{}
	mock.RegisterResponder(http.MethodPatch, `=~^https://cvat\.test/api/jobs/\d+\z`,
		func(req *http.Request) (*http.Response, error) {
			var body map[string]int
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			var id int
			_, _ = fmt.Sscanf(req.URL.Path, "/api/jobs/%d", &id)
			assigned[id] = body["assignee"]
			return httpmock.NewJsonResponse(http.StatusOK, cvat.Job{ID: id})
		})

	res, err := im.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "logs/new_images_20260120_000000.txt", res.Source)
	assert.Equal(t, "New Data Import - 20260121_090000", created.Name)
	assert.Equal(t, [][]string{
		{"23dc/session_1/0001/down/f1.jpg", "23dc/session_1/0001/down/f2.jpg"},
		{"23dc/session_2/0001/down/f1.jpg"},
		{"misc/frame.jpg"},
	}, attached.JobFileMapping)

	assert.Equal(t, 3, res.Jobs)
	assert.Equal(t, assign.Result{Assigned: 3}, res.Assigned)
	assert.Equal(t, map[int]int{901: 7, 902: 8, 903: 7}, assigned)
	assert.Equal(t, "https://cvat.test/tasks/90", res.TaskURL)

	var entries []mapping.Entry
	require.NoError(t, logs.ReadJSON("job_session_mapping_90.json", &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "session_1_0001", entries[0].SessionID)
	assert.Equal(t, 2, entries[0].FrameCount)
	assert.Equal(t, "unknown", entries[2].SessionID)
	assert.Nil(t, entries[0].ImageCount)
}

func TestRunEmptyList(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	im, logs := newImporter(t, client)
	path, err := logs.WriteLines("list.txt", nil)
	require.NoError(t, err)

	res, err := im.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.TaskID)
	assert.Zero(t, mock.GetTotalCallCount())
}

func TestRunWithoutList(t *testing.T) {
	client, _ := testutil.NewCVATClient(t)
	im, _ := newImporter(t, client)
	_, err := im.Run(context.Background(), "")
	require.Error(t, err)
}
