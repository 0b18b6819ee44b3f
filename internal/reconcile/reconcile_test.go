package reconcile

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/testutil"
)

// TestMain verifies the probe fan-out leaves no goroutines behind
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
	os.Exit(m.Run())
}

const prefix = "b1e0/"

func jobsResponder(t *testing.T, byTask map[string][]cvat.Job) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		jobs := byTask[req.URL.Query().Get("task_id")]
		return httpmock.NewJsonResponse(http.StatusOK, testutil.Page(jobs...))
	}
}

func setupCVAT(t *testing.T) (*cvat.Client, *httpmock.MockTransport) {
	t.Helper()
	client, mock := testutil.NewCVATClient(t)

	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Task{ID: 1, Name: "batch one", Size: 4},
			cvat.Task{ID: 2, Name: "batch two", Size: 2},
			cvat.Task{ID: 1967925, Name: "excluded", Size: 1},
		)))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/1/data/meta"),
		testutil.JSON(t, http.StatusOK, testutil.Frames(
			"b1e0/session_1/0000/ab__f1.jpg", "b1e0/session_1/0000/ab__f2.jpg",
			"b1e0/session_1/0000/ab__f3.jpg", "b1e0/session_1/0000/ab__f4.jpg")))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/2/data/meta"),
		testutil.JSON(t, http.StatusOK, testutil.Frames("g1.jpg", "g2.jpg")))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs"), jobsResponder(t, map[string][]cvat.Job{
		"1": {{ID: 11, StartFrame: 0, StopFrame: 1}, {ID: 12, StartFrame: 2, StopFrame: 3}},
		"2": {{ID: 21, StartFrame: 0, StopFrame: 1}},
	}))

	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/11/annotations"),
		testutil.JSON(t, http.StatusOK, cvat.Annotations{Shapes: []cvat.Shape{{Frame: 0, Type: "rectangle"}}}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/12/annotations"),
		testutil.JSON(t, http.StatusOK, cvat.Annotations{}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/21/annotations"),
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
	return client, mock
}

func newStore() *cloudstore.Memory {
	store := cloudstore.NewMemory("annotation")
	for _, key := range []string{
		"b1e0/session_1/0000/ab__f1.jpg",
		"b1e0/session_1/0000/ab__f2.jpg",
		"b1e0/session_1/0000/ab__f3.jpg",
		"b1e0/session_1/0000/ab__f4.jpg",
		"b1e0/session_1/0000/ab__f5.jpg",
		"b1e0/session_1/meta.json",
		"b1e0/session_2/0000/h1.jpg",
		"b1e0/session_3/0000/n1.png",
		"b1e0/session_3/meta.json",
	} {
		store.Put(key, []byte("x"))
	}
	return store
}

func TestRun(t *testing.T) {
	client, mock := setupCVAT(t)
	r := New(client, newStore(), Config{Prefix: prefix, Excluded: []int{1967925}, Workers: 2}, nil)

	status, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"f1.jpg", "f2.jpg"}, status.AnnotatedImages)
	assert.Equal(t, []string{"f3.jpg", "f4.jpg", "g1.jpg", "g2.jpg"}, status.NotAnnotatedImages)
	assert.Equal(t, []string{"f5.jpg", "n1.png"}, status.NewImages)
	assert.Equal(t, []string{"b1e0/session_1/0000/ab__f5.jpg", "b1e0/session_3/0000/n1.png"}, status.NewImagePaths)

	require.NotNil(t, status.Summary.CloudTotal)
	assert.Equal(t, 6, *status.Summary.CloudTotal)
	assert.Equal(t, 2, *status.Summary.NewImages)
	assert.Equal(t, 6, status.Summary.CVATLoaded)
	assert.Equal(t, 2, status.Summary.CVATAnnotated)
	assert.Equal(t, 4, status.Summary.CVATNotAnnotated)
	assert.Equal(t, []string{"session_2"}, status.Sessions.Incomplete)

	require.Len(t, status.Tasks, 2)
	assert.Equal(t, 1, status.Tasks[0].AnnotatedJobs)
	assert.Equal(t, 1, status.Tasks[1].FailedProbes)

	info := mock.GetCallCountInfo()
	assert.Equal(t, 0, info["GET "+testutil.URL("/api/tasks/1967925/data/meta")])
	// one retry on the 500
	assert.Equal(t, 2, info["GET "+testutil.URL("/api/jobs/21/annotations")])
}

func TestRunWithoutStoreAndTaskIDs(t *testing.T) {
	client, mock := setupCVAT(t)
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/1"),
		testutil.JSON(t, http.StatusOK, cvat.Task{ID: 1, Name: "batch one"}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/tasks/3"),
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Not found."}`))

	r := New(client, nil, Config{TaskIDs: []int{1, 3}}, nil)
	status, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, status.Summary.CloudTotal)
	assert.Nil(t, status.Sessions)
	assert.Empty(t, status.NewImages)
	assert.Equal(t, 4, status.Summary.CVATLoaded)
	require.Len(t, status.Tasks, 1)
}

func TestRunCancelled(t *testing.T) {
	client, _ := setupCVAT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(client, nil, Config{}, nil).Run(ctx)
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	w := report.NewWriter(afero.NewMemMapFs(), "logs")
	now := time.Date(2026, 1, 21, 9, 30, 0, 0, time.Local)
	status := &Status{
		NewImages:     []string{"f5.jpg"},
		NewImagePaths: []string{"b1e0/session_1/0000/ab__f5.jpg"},
	}

	statusPath, listPath, err := Write(w, status, now)
	require.NoError(t, err)
	assert.Equal(t, "logs/annotation_status_20260121_093000.json", statusPath)
	assert.Equal(t, "logs/new_images_20260121_093000.txt", listPath)

	lines, err := report.ReadLines(w.Fs(), listPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1e0/session_1/0000/ab__f5.jpg"}, lines)

	_, listPath, err = Write(w, &Status{}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, listPath)
}

func TestDifference(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}}
	assert.Equal(t, []string{"x", "z"}, difference(a, b))
	assert.Equal(t, "new_images_"+strconv.Itoa(1)+".txt", NewImagesFile("1"))
}
