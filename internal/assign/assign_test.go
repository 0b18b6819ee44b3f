package assign

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/testutil"
)

var (
	ann = Person{ID: 1, Name: "Ann"}
	bob = Person{ID: 2, Name: "Bob"}
	cat = Person{ID: 3, Name: "Cat"}
)

func TestRoundRobin(t *testing.T) {
	jobs := []cvat.Job{
		{ID: 30, StartFrame: 20},
		{ID: 10, StartFrame: 0},
		{ID: 20, StartFrame: 10},
	}
	plan := RoundRobin(jobs, []Person{ann, bob}, []string{"s1", "s2"})
	require.Len(t, plan, 3)
	assert.Equal(t, Assignment{JobID: 10, Person: ann, Label: "s1"}, plan[0])
	assert.Equal(t, Assignment{JobID: 20, Person: bob, Label: "s2"}, plan[1])
	assert.Equal(t, Assignment{JobID: 30, Person: ann}, plan[2])

	assert.Nil(t, RoundRobin(jobs, nil, nil))

	// people without an id are skipped but keep their turn
	plan = RoundRobin(jobs, []Person{ann, {Name: "nobody"}}, nil)
	assert.Len(t, plan, 2)
}

func TestApply(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	mock.RegisterResponder(http.MethodPatch, testutil.URL("/api/jobs/10"),
		testutil.JSON(t, http.StatusOK, cvat.Job{ID: 10, Assignee: &cvat.User{ID: 1}}))
	mock.RegisterResponder(http.MethodPatch, testutil.URL("/api/jobs/20"),
		httpmock.NewStringResponder(http.StatusBadRequest, `{"assignee":["invalid"]}`))

	res, err := Apply(context.Background(), client, []Assignment{
		{JobID: 10, Person: ann},
		{JobID: 20, Person: bob},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Assigned: 1, Failed: 1}, res)
}

func TestParseSelection(t *testing.T) {
	got, err := ParseSelection("all", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)

	got, err = ParseSelection(" 3 1 9 ", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, got)

	_, err = ParseSelection("1 x", 3)
	require.Error(t, err)

	_, err = ParseSelection("7", 3)
	require.Error(t, err)
}

func TestBalance(t *testing.T) {
	started := map[int]int{ann.ID: 5, cat.ID: 1}
	w := Balance([]Person{ann, bob, cat}, started, 6)
	require.Len(t, w, 3)

	assert.Equal(t, Workload{Person: bob, Started: 0, Target: 3, Need: 3}, w[0])
	assert.Equal(t, Workload{Person: cat, Started: 1, Target: 4, Need: 3}, w[1])
	assert.Equal(t, Workload{Person: ann, Started: 5, Target: 5, Need: 0}, w[2])
	assert.Equal(t, "Bob: started 0 + assign 3 = 3", w[0].String())

	assert.Nil(t, Balance(nil, started, 3))
}

func TestBalanceEvenSplit(t *testing.T) {
	w := Balance([]Person{ann, bob}, map[int]int{}, 5)
	assert.Equal(t, 3, w[0].Need)
	assert.Equal(t, 2, w[1].Need)
}

func TestDistribute(t *testing.T) {
	candidates := []Candidate{{JobID: 1}, {JobID: 2}, {JobID: 3, TaskName: "t"}}
	plan := Distribute([]Workload{
		{Person: bob, Need: 2},
		{Person: cat, Need: 2},
		{Person: ann, Need: 0},
	}, candidates)
	require.Len(t, plan, 3)
	assert.Equal(t, bob, plan[1].Person)
	assert.Equal(t, cat, plan[2].Person)
	assert.Equal(t, "t", plan[2].Label)
}

func TestSurveyTasks(t *testing.T) {
	client, mock := testutil.NewCVATClient(t)
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs"),
		testutil.JSON(t, http.StatusOK, testutil.Page(
			cvat.Job{ID: 2, StartFrame: 10, StopFrame: 19, Assignee: &cvat.User{ID: 1, Username: "ann"}},
			cvat.Job{ID: 1, StartFrame: 0, StopFrame: 9, Assignee: &cvat.User{ID: 1, Username: "ann"}},
			cvat.Job{ID: 3, StartFrame: 20, StopFrame: 29},
		)))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/1/annotations"),
		testutil.JSON(t, http.StatusOK, cvat.Annotations{Shapes: []cvat.Shape{{Frame: 1}}}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/2/annotations"),
		testutil.JSON(t, http.StatusOK, cvat.Annotations{}))
	mock.RegisterResponder(http.MethodGet, testutil.URL("/api/jobs/3/annotations"),
		httpmock.NewStringResponder(http.StatusForbidden, "denied"))

	s, err := SurveyTasks(context.Background(), client, []cvat.Task{{ID: 7, Name: "batch"}})
	require.NoError(t, err)
	require.Len(t, s.Unstarted, 1)
	assert.Equal(t, Candidate{JobID: 2, TaskID: 7, TaskName: "batch", StartFrame: 10, StopFrame: 19, CurrentAssignee: "ann"}, s.Unstarted[0])
	assert.Equal(t, 10, s.Unstarted[0].FrameCount())
	assert.Equal(t, map[int]int{1: 1}, s.Started)
	assert.Equal(t, 1, s.Unknown)
}
