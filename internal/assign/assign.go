// Package assign distributes CVAT jobs among annotators, either round robin
// over a fresh task or by rebalancing the jobs nobody has started.
package assign

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
)

// Person is someone jobs can be assigned to
type Person struct {
	ID   int
	Name string
}

// Assignment gives one job to one person
type Assignment struct {
	JobID  int
	Person Person
	Label  string // session or task the job belongs to, for logs
}

// RoundRobin assigns jobs in start-frame order to people in turn. labels,
// if given, names the job at the same index (the session of the job).
func RoundRobin(jobs []cvat.Job, people []Person, labels []string) []Assignment {
	if len(people) == 0 {
		return nil
	}
	ordered := make([]cvat.Job, len(jobs))
	copy(ordered, jobs)
	cvat.SortJobsByStartFrame(ordered)

	plan := make([]Assignment, 0, len(ordered))
	for i, j := range ordered {
		p := people[i%len(people)]
		if p.ID == 0 {
			continue
		}
		a := Assignment{JobID: j.ID, Person: p}
		if i < len(labels) {
			a.Label = labels[i]
		}
		plan = append(plan, a)
	}
	return plan
}

// Result counts applied assignments
type Result struct {
	Assigned int
	Failed   int
}

// Apply performs the assignments. Failures are logged and counted; only a
// cancelled context stops the run.
func Apply(ctx context.Context, client *cvat.Client, plan []Assignment, m *metrics.Metrics) (Result, error) {
	log := GetLogger()
	var res Result
	for _, a := range plan {
		if _, err := client.AssignJob(ctx, a.JobID, a.Person.ID); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			m.RecordItem("assign", "failed")
			log.Error("failed to assign job",
				logger.Int("job_id", a.JobID),
				logger.Int("user_id", a.Person.ID),
				logger.Error(err))
			continue
		}
		res.Assigned++
		m.RecordItem("assign", "ok")
		log.Info("job assigned",
			logger.Int("job_id", a.JobID),
			logger.String("label", a.Label),
			logger.String("assignee", a.Person.Name))
	}
	return res, nil
}

// ParseSelection turns "all" or space separated 1-based numbers into indexes
// of a list of n entries. Numbers out of range are ignored.
func ParseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "all") {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	var out []int
	for _, field := range strings.Fields(input) {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Newf("invalid selection %q", field).
				Category(errors.CategoryValidation).
				Component("assign").
				Build()
		}
		if v >= 1 && v <= n {
			out = append(out, v-1)
		}
	}
	if len(out) == 0 {
		return nil, errors.Newf("no one selected").
			Category(errors.CategoryValidation).
			Component("assign").
			Build()
	}
	return out, nil
}

// Candidate is a job with no annotated frames that may be reassigned
type Candidate struct {
	JobID           int
	TaskID          int
	TaskName        string
	StartFrame      int
	StopFrame       int
	CurrentAssignee string
}

// FrameCount is the number of frames in the job
func (c Candidate) FrameCount() int { return c.StopFrame - c.StartFrame + 1 }

// Survey is the state of all jobs relevant for rebalancing
type Survey struct {
	Unstarted []Candidate
	// Started counts jobs with annotations per assignee id
	Started map[int]int
	// Unknown counts jobs whose annotations could not be read; they are left alone
	Unknown int
}

// SurveyTasks probes every job of the tasks one after another
func SurveyTasks(ctx context.Context, client *cvat.Client, tasks []cvat.Task) (*Survey, error) {
	log := GetLogger()
	s := &Survey{Started: make(map[int]int)}

	for ti := range tasks {
		task := &tasks[ti]
		jobs, err := client.ListJobsByStartFrame(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			continue
		}
		log.Info("scanning task", logger.Int("task_id", task.ID), logger.String("name", task.Name), logger.Int("jobs", len(jobs)))

		for i := range jobs {
			j := &jobs[i]
			stats, err := client.JobAnnotationStats(ctx, j.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.Unknown++
				log.Warn("could not read job annotations", logger.Int("job_id", j.ID), logger.Error(err))
				continue
			}
			if stats.AnnotatedFrames == 0 {
				c := Candidate{
					JobID:      j.ID,
					TaskID:     task.ID,
					TaskName:   task.Name,
					StartFrame: j.StartFrame,
					StopFrame:  j.StopFrame,
				}
				if j.Assignee != nil {
					c.CurrentAssignee = j.Assignee.Username
				}
				s.Unstarted = append(s.Unstarted, c)
				continue
			}
			if id := j.AssigneeID(); id != 0 {
				s.Started[id]++
			}
		}
	}
	return s, nil
}

// Workload is the planned load of one person
type Workload struct {
	Person  Person
	Started int
	Target  int
	Need    int
}

// String renders the workload for the plan preview
func (w Workload) String() string {
	return fmt.Sprintf("%s: started %d + assign %d = %d", w.Person.Name, w.Started, w.Need, w.Target)
}

// Balance computes targets so that started plus assigned jobs are as even as
// possible. People with the most started jobs get their target first; a
// person already above the average keeps exactly their started jobs. The
// result is ordered by need, largest first.
func Balance(people []Person, started map[int]int, unstarted int) []Workload {
	if len(people) == 0 {
		return nil
	}
	total := unstarted
	for _, p := range people {
		total += started[p.ID]
	}

	byStarted := make([]Person, len(people))
	copy(byStarted, people)
	sort.SliceStable(byStarted, func(i, j int) bool {
		return started[byStarted[i].ID] > started[byStarted[j].ID]
	})

	targets := make(map[int]int, len(people))
	remaining, left := total, len(people)
	for _, p := range byStarted {
		avg := remaining / left
		if remaining%left > 0 {
			avg++
		}
		target := max(started[p.ID], avg)
		targets[p.ID] = target
		remaining -= target
		left--
	}

	out := make([]Workload, len(people))
	for i, p := range people {
		out[i] = Workload{
			Person:  p,
			Started: started[p.ID],
			Target:  targets[p.ID],
			Need:    targets[p.ID] - started[p.ID],
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Need > out[j].Need })
	return out
}

// Distribute hands out candidates in order, filling each workload's need
// before moving to the next.
func Distribute(workloads []Workload, candidates []Candidate) []Assignment {
	var plan []Assignment
	next := 0
	for _, w := range workloads {
		for range w.Need {
			if next >= len(candidates) {
				return plan
			}
			c := candidates[next]
			plan = append(plan, Assignment{
				JobID:  c.JobID,
				Person: w.Person,
				Label:  c.TaskName,
			})
			next++
		}
	}
	return plan
}
