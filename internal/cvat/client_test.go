package cvat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: testBaseURL})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewClient(Config{BaseURL: "cvat.local", APIKey: "k"})
	require.Error(t, err)

	c, err := NewClient(Config{BaseURL: testBaseURL + "/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, testBaseURL, c.BaseURL())
	assert.Equal(t, testBaseURL+"/tasks/7", c.TaskURL(7))
	assert.Equal(t, DefaultConfig().Timeout, c.config.Timeout)
}

func TestListTasksPaginatesWithAuthAndOrg(t *testing.T) {
	client, mock := newTestClient(t)

	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Token test-token", req.Header.Get("Authorization"))
			assert.Equal(t, "wp", req.URL.Query().Get("org"))
			assert.Equal(t, "500", req.URL.Query().Get("page_size"))

			switch req.URL.Query().Get("page") {
			case "1":
				return httpmock.NewJsonResponse(http.StatusOK,
					page([]Task{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, testBaseURL+"/api/tasks?page=2"))
			case "2":
				return httpmock.NewJsonResponse(http.StatusOK, page([]Task{{ID: 3, Name: "c"}}, ""))
			}
			return httpmock.NewStringResponse(http.StatusNotFound, "{}"), nil
		})

	tasks, err := client.ListTasks(t.Context())
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, 3, tasks[2].ID)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestSelectTasks(t *testing.T) {
	client, mock := newTestClient(t, func(c *Config) { c.MaxRetries = 0 })
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks",
		jsonResponder(t, http.StatusOK, page([]Task{{ID: 1}, {ID: 2}, {ID: 3}}, "")))
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/5",
		jsonResponder(t, http.StatusOK, Task{ID: 5}))
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/6",
		jsonResponder(t, http.StatusNotFound, map[string]string{"detail": "Not found."}))

	all, err := client.SelectTasks(t.Context(), nil, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, []int{all[0].ID, all[1].ID})

	picked, err := client.SelectTasks(t.Context(), []int{5, 6}, nil)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, 5, picked[0].ID)
}

func TestRetryOnServerError(t *testing.T) {
	client, mock := newTestClient(t)

	var calls atomic.Int32
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/5",
		func(*http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, Task{ID: 5, Size: 10})
		})

	task, err := client.GetTask(t.Context(), 5)
	require.NoError(t, err)
	assert.Equal(t, 10, task.Size)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/5",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	_, err := client.GetTask(t.Context(), 5)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, 4, mock.GetTotalCallCount())
}

func TestNoRetryOnClientError(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/404",
		jsonResponder(t, http.StatusNotFound, map[string]string{"detail": "Not found."}))

	_, err := client.GetTask(t.Context(), 404)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Contains(t, err.Error(), "Not found.")
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestRetryOnTransportError(t *testing.T) {
	client, mock := newTestClient(t, func(c *Config) { c.MaxRetries = 1 })
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/1",
		httpmock.NewErrorResponder(io.ErrUnexpectedEOF))

	_, err := client.GetTask(t.Context(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestHTMLErrorBodyIsFlattened(t *testing.T) {
	client, mock := newTestClient(t, func(c *Config) { c.MaxRetries = 0 })
	resp := httpmock.NewStringResponse(http.StatusBadGateway,
		"<html><body><h1>502 Bad Gateway</h1><p>nginx</p></body></html>")
	resp.Header.Set("Content-Type", "text/html")
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/1", httpmock.ResponderFromResponse(resp))

	_, err := client.GetTask(t.Context(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502 Bad Gateway")
	assert.NotContains(t, err.Error(), "<h1>")
}

func TestCancelledContextStopsRetries(t *testing.T) {
	client, mock := newTestClient(t, func(c *Config) { c.RetryBaseDelay = time.Hour })
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/1",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetTask(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestMembershipsAreCached(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/memberships",
		jsonResponder(t, http.StatusOK, page([]Membership{
			{ID: 1, Role: "owner", User: User{ID: 10, Username: "boss"}},
			{ID: 2, Role: "worker", User: User{ID: 11, Username: "ana", FirstName: "Ana", LastName: "Li"}},
		}, "")))

	first, err := client.ListMemberships(t.Context())
	require.NoError(t, err)
	_, err = client.ListMemberships(t.Context())
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.True(t, first[0].IsAdmin())
	assert.False(t, first[1].IsAdmin())
	assert.Equal(t, 1, mock.GetTotalCallCount())

	names, err := client.UserNames(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{10: "boss", 11: "Ana Li"}, names)

	client.ClearCache()
	_, err = client.ListMemberships(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestCreateTaskAndAttachData(t *testing.T) {
	client, mock := newTestClient(t)

	mock.RegisterResponder(http.MethodPost, testBaseURL+"/api/tasks",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "wp", req.URL.Query().Get("org"))
			var spec TaskSpec
			require.NoError(t, json.NewDecoder(req.Body).Decode(&spec))
			assert.Equal(t, "Batch", spec.Name)
			require.Len(t, spec.Labels, 1)
			return httpmock.NewJsonResponse(http.StatusCreated, Task{ID: 77, Name: spec.Name})
		})

	var attached DataRequest
	mock.RegisterResponder(http.MethodPost, testBaseURL+"/api/tasks/77/data",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&attached))
			return httpmock.NewJsonResponse(http.StatusAccepted, RequestID{RQID: "rq-1"})
		})

	task, err := client.CreateTask(t.Context(), TaskSpec{Name: "Batch", Labels: []LabelSpec{{Name: "Left hand", Color: "#ff00ff"}}})
	require.NoError(t, err)
	assert.Equal(t, 77, task.ID)

	rq, err := client.AttachData(t.Context(), task.ID, NewDataRequest(4837, []string{"a.jpg", "b.jpg"}, nil, 70))
	require.NoError(t, err)
	assert.Equal(t, "rq-1", rq.RQID)
	assert.Equal(t, "natural", attached.SortingMethod)
	assert.Nil(t, attached.JobFileMapping)
	assert.Equal(t, "cache", attached.StorageMethod)
	assert.True(t, attached.UseCache)
}

func TestNewDataRequestWithMapping(t *testing.T) {
	req := NewDataRequest(1, []string{"a", "b"}, [][]string{{"a"}, {"b"}}, 70)
	assert.Empty(t, req.SortingMethod)
	assert.Len(t, req.JobFileMapping, 2)

	data, err := json.Marshal(NewDataRequest(1, []string{"a"}, nil, 70))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "job_file_mapping")
}

func TestUploadAnnotationsMultipart(t *testing.T) {
	client, mock := newTestClient(t)

	mock.RegisterResponder(http.MethodPost, testBaseURL+"/api/tasks/9/annotations",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, FormatCOCO, req.URL.Query().Get("format"))
			file, header, err := req.FormFile("annotation_file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "annotations.zip", header.Filename)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, []byte("zipdata"), data)
			return httpmock.NewJsonResponse(http.StatusAccepted, RequestID{RQID: "rq-import"})
		})

	rq, err := client.UploadAnnotations(t.Context(), 9, "", []byte("zipdata"))
	require.NoError(t, err)
	assert.Equal(t, "rq-import", rq.RQID)
}

func TestAssignJob(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPatch, testBaseURL+"/api/jobs/3",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]int
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, map[string]int{"assignee": 42}, body)
			return httpmock.NewJsonResponse(http.StatusOK, Job{ID: 3, Assignee: &User{ID: 42}})
		})

	job, err := client.AssignJob(t.Context(), 3, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, job.AssigneeID())
}

func TestJobAnnotationStats(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/jobs/1/annotations",
		jsonResponder(t, http.StatusOK, Annotations{
			Shapes: []Shape{{Frame: 0}, {Frame: 0}, {Frame: 2}},
			Tracks: []Track{{Shapes: []TrackShape{{Frame: 2}, {Frame: 5}}}},
		}))
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/jobs/2/annotations",
		jsonResponder(t, http.StatusOK, Annotations{}))

	stats, err := client.JobAnnotationStats(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, AnnotationStats{Shapes: 3, Tracks: 1, AnnotatedFrames: 3, ShapeFrames: 2}, stats)

	has, err := client.HasAnnotations(t.Context(), 2)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCreateJobAnnotations(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPatch, testBaseURL+"/api/jobs/8/annotations",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "create", req.URL.Query().Get("action"))
			var ann Annotations
			require.NoError(t, json.NewDecoder(req.Body).Decode(&ann))
			require.Len(t, ann.Shapes, 1)
			assert.Equal(t, []float64{1, 2, 4, 6}, ann.Shapes[0].Points)
			return httpmock.NewJsonResponse(http.StatusOK, ann)
		})

	err := client.CreateJobAnnotations(t.Context(), 8, &Annotations{Shapes: []Shape{
		{Type: "rectangle", Frame: 4, LabelID: 1, Points: []float64{1, 2, 4, 6}, Attributes: []Attribute{}},
	}})
	require.NoError(t, err)
}

func TestLabelIDs(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/labels",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "12", req.URL.Query().Get("task_id"))
			return httpmock.NewJsonResponse(http.StatusOK, page([]Label{{ID: 1, Name: "Left hand"}, {ID: 2, Name: "Right hand"}}, ""))
		})

	ids, err := client.LabelIDs(t.Context(), 12)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Left hand": 1, "Right hand": 2}, ids)
}

func TestJobHelpers(t *testing.T) {
	assigned := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	j := Job{StartFrame: 10, StopFrame: 19, CreatedDate: created}
	assert.Equal(t, 10, j.FrameCount())
	assert.Equal(t, 0, j.AssigneeID())
	assert.Equal(t, created, j.WorkStart())

	j.AssigneeUpdatedDate = &assigned
	assert.Equal(t, assigned, j.WorkStart())

	jobs := []Job{{ID: 3, StartFrame: 20}, {ID: 1, StartFrame: 0}, {ID: 2, StartFrame: 10}}
	SortJobsByStartFrame(jobs)
	assert.Equal(t, []int{1, 2, 3}, []int{jobs[0].ID, jobs[1].ID, jobs[2].ID})

	var nilUser *User
	assert.Empty(t, nilUser.DisplayName())
}

func TestMetricsAreRecorded(t *testing.T) {
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api/tasks/1",
		jsonResponder(t, http.StatusOK, Task{ID: 1}))

	client, err := NewClient(Config{BaseURL: testBaseURL, APIKey: "k"},
		WithHTTPClient(&http.Client{Transport: mock}), WithMetrics(m))
	require.NoError(t, err)

	_, err = client.GetTask(t.Context(), 1)
	require.NoError(t, err)

	path := t.TempDir() + "/cvat.prom"
	require.NoError(t, m.WriteTextfile(path))
}
