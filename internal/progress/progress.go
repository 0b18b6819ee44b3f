// Package progress reports how far annotators are with their jobs, per task
// and per user.
package progress

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
)

// Job states derived from annotated frames
const (
	StateNotStarted = "not_started"
	StateInProgress = "in_progress"
	StateCompleted  = "completed"
)

// BarWidth is the number of cells in a progress bar
const BarWidth = 40

// JobState classifies a job by how many of its frames carry annotations
func JobState(annotatedFrames, frameCount int) string {
	switch {
	case annotatedFrames == 0:
		return StateNotStarted
	case annotatedFrames >= frameCount:
		return StateCompleted
	default:
		return StateInProgress
	}
}

// Counts tallies jobs by state
type Counts struct {
	Total      int `json:"total"`
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func (c *Counts) add(state string) {
	c.Total++
	switch state {
	case StateNotStarted:
		c.NotStarted++
	case StateInProgress:
		c.InProgress++
	case StateCompleted:
		c.Completed++
	}
}

// AssigneeStats is one annotator's share of a task
type AssigneeStats struct {
	Name            string `json:"name"`
	Jobs            Counts `json:"jobs"`
	Frames          int    `json:"frames"`
	AnnotatedFrames int    `json:"annotated_frames"`
	Shapes          int    `json:"shapes"`
}

// TaskStats aggregates the jobs of one task
type TaskStats struct {
	TaskID          int                       `json:"task_id"`
	TaskName        string                    `json:"task_name"`
	TaskStatus      string                    `json:"task_status"`
	CreatedDate     string                    `json:"created_date"`
	Jobs            Counts                    `json:"jobs"`
	TotalFrames     int                       `json:"total_frames"`
	AnnotatedFrames int                       `json:"annotated_frames"`
	Assignees       map[string]*AssigneeStats `json:"assignees"`
}

// UserStats aggregates every job of one annotator
type UserStats struct {
	Name            string    `json:"name"`
	Username        string    `json:"username"`
	Jobs            Counts    `json:"jobs"`
	TotalFrames     int       `json:"total_frames"`
	AnnotatedFrames int       `json:"annotated_frames"`
	Shapes          int       `json:"shapes"`
	Speeds          []float64 `json:"speeds"`
	// AvgSpeed is frames per hour, absent without a measurable job
	AvgSpeed *float64 `json:"avg_speed,omitempty"`
}

// Label is the display name followed by the username when they differ
func (u *UserStats) Label() string {
	return Label(u.Name, u.Username)
}

// Rate returns the annotated share of frames in whole percent
func (u *UserStats) Rate() int {
	return percent(u.AnnotatedFrames, u.TotalFrames)
}

func (u *UserStats) ratio() float64 {
	if u.TotalFrames == 0 {
		return 0
	}
	return float64(u.AnnotatedFrames) / float64(u.TotalFrames)
}

// Summary counts what the report covers
type Summary struct {
	TotalTasks int `json:"total_tasks"`
	TotalUsers int `json:"total_users"`
}

// Report is the progress report
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Summary     Summary      `json:"summary"`
	Tasks       []*TaskStats `json:"tasks"`
	// Users are sorted by completion rate, highest first
	Users []*UserStats `json:"users"`
}

// Config selects tasks
type Config struct {
	TaskIDs  []int
	Excluded []int
}

// Checker builds progress reports
type Checker struct {
	client *cvat.Client
	config Config
	now    func() time.Time
	log    logger.Logger
}

// New returns a checker
func New(client *cvat.Client, config Config) *Checker {
	return &Checker{client: client, config: config, now: time.Now, log: GetLogger()}
}

// Run inspects every selected task. Jobs whose annotations cannot be read
// count as not started.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	tasks, err := c.client.SelectTasks(ctx, c.config.TaskIDs, c.config.Excluded)
	if err != nil {
		return nil, err
	}
	names, err := c.client.UserNames(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("could not list organization members, using usernames", logger.Error(err))
		names = map[int]string{}
	}

	rep := &Report{GeneratedAt: c.now()}
	users := make(map[string]*UserStats)
	for i := range tasks {
		ts, err := c.inspectTask(ctx, &tasks[i], names, users)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("failed to inspect task", logger.Int("task_id", tasks[i].ID), logger.Error(err))
			continue
		}
		if ts != nil {
			rep.Tasks = append(rep.Tasks, ts)
		}
	}

	for _, u := range users {
		if len(u.Speeds) > 0 {
			var sum float64
			for _, s := range u.Speeds {
				sum += s
			}
			avg := sum / float64(len(u.Speeds))
			u.AvgSpeed = &avg
		}
		rep.Users = append(rep.Users, u)
	}
	sort.SliceStable(rep.Users, func(i, j int) bool {
		ri, rj := rep.Users[i].ratio(), rep.Users[j].ratio()
		if ri != rj {
			return ri > rj
		}
		if rep.Users[i].Name != rep.Users[j].Name {
			return rep.Users[i].Name < rep.Users[j].Name
		}
		return rep.Users[i].Username < rep.Users[j].Username
	})
	rep.Summary = Summary{TotalTasks: len(rep.Tasks), TotalUsers: len(rep.Users)}
	return rep, nil
}

// inspectTask returns nil stats for a task without jobs
func (c *Checker) inspectTask(ctx context.Context, task *cvat.Task, names map[int]string, users map[string]*UserStats) (*TaskStats, error) {
	jobs, err := c.client.ListJobs(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		c.log.Info("task has no jobs", logger.Int("task_id", task.ID))
		return nil, nil
	}
	c.log.Info("checking task",
		logger.Int("task_id", task.ID),
		logger.String("task_name", task.Name),
		logger.Int("jobs", len(jobs)))

	ts := &TaskStats{
		TaskID:     task.ID,
		TaskName:   task.Name,
		TaskStatus: task.Status,
		Assignees:  make(map[string]*AssigneeStats),
	}
	if !task.CreatedDate.IsZero() {
		ts.CreatedDate = task.CreatedDate.Format(report.DayLayout)
	}

	for i := range jobs {
		job := &jobs[i]
		stats, err := c.client.JobAnnotationStats(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debug("could not read job annotations", logger.Int("job_id", job.ID), logger.Error(err))
			stats = cvat.AnnotationStats{}
		}
		if (i+1)%10 == 0 || i+1 == len(jobs) {
			c.log.Debug("job progress", logger.Int("task_id", task.ID), logger.Int("checked", i+1), logger.Int("total", len(jobs)))
		}

		frames := job.FrameCount()
		state := JobState(stats.AnnotatedFrames, frames)
		ts.Jobs.add(state)
		ts.TotalFrames += frames
		ts.AnnotatedFrames += stats.AnnotatedFrames

		if job.Assignee == nil {
			continue
		}
		// members may share a display name, so tallies are keyed by username
		key := UserKey(job.Assignee)
		name := AssigneeName(job.Assignee, names)
		as := ts.Assignees[key]
		if as == nil {
			as = &AssigneeStats{Name: name}
			ts.Assignees[key] = as
		}
		as.Jobs.add(state)
		as.Frames += frames
		as.AnnotatedFrames += stats.AnnotatedFrames
		as.Shapes += stats.Shapes

		u := users[key]
		if u == nil {
			u = &UserStats{Name: name, Username: key, Speeds: []float64{}}
			users[key] = u
		}
		u.Jobs.add(state)
		u.TotalFrames += frames
		u.AnnotatedFrames += stats.AnnotatedFrames
		u.Shapes += stats.Shapes
		if speed, ok := Speed(stats.AnnotatedFrames, job.WorkStart(), job.UpdatedDate); ok {
			u.Speeds = append(u.Speeds, speed)
		}
	}
	return ts, nil
}

// AssigneeName prefers the member display name, then the username
func AssigneeName(u *cvat.User, names map[int]string) string {
	if n, ok := names[u.ID]; ok && n != "" {
		return n
	}
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("User_%d", u.ID)
}

// UserKey identifies an assignee: the username, else User_<id>
func UserKey(u *cvat.User) string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("User_%d", u.ID)
}

// Label renders a display name with its username when the two differ
func Label(name, username string) string {
	if username == "" || name == username {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, username)
}

// Speed returns annotated frames per hour between start and end. It reports
// false when nothing was annotated or the interval is not positive.
func Speed(annotatedFrames int, start, end time.Time) (float64, bool) {
	if annotatedFrames <= 0 || start.IsZero() || end.IsZero() {
		return 0, false
	}
	hours := end.Sub(start).Hours()
	if hours <= 0 {
		return 0, false
	}
	return float64(annotatedFrames) / hours, true
}

// Bar renders a completion percentage as a fixed width bar
func Bar(rate int) string {
	if rate < 0 {
		rate = 0
	}
	if rate > 100 {
		rate = 100
	}
	filled := BarWidth * rate / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", BarWidth-filled)
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return part * 100 / total
}

func jobsLine(c Counts) string {
	return fmt.Sprintf("%d completed / %d in progress / %d not started (of %d)",
		c.Completed, c.InProgress, c.NotStarted, c.Total)
}

// Print writes the human readable report
func Print(w io.Writer, rep *Report) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Task progress")
	fmt.Fprintln(w, rule)
	for _, ts := range rep.Tasks {
		fmt.Fprintf(w, "\nTask: %s (ID: %d)\n", ts.TaskName, ts.TaskID)
		fmt.Fprintf(w, "   Created: %s\n", ts.CreatedDate)
		fmt.Fprintf(w, "   Status: %s\n", ts.TaskStatus)
		fmt.Fprintf(w, "   Jobs: %d\n", ts.Jobs.Total)
		fmt.Fprintf(w, "   Frames: %d\n", ts.TotalFrames)
		fmt.Fprintf(w, "   Annotated frames: %d (%d%%)\n", ts.AnnotatedFrames, percent(ts.AnnotatedFrames, ts.TotalFrames))
		fmt.Fprintln(w, "   Job states:")
		for _, s := range []struct {
			name  string
			count int
		}{
			{StateCompleted, ts.Jobs.Completed},
			{StateInProgress, ts.Jobs.InProgress},
			{StateNotStarted, ts.Jobs.NotStarted},
		} {
			if s.count > 0 {
				fmt.Fprintf(w, "     - %s: %d (%d%%)\n", s.name, s.count, percent(s.count, ts.Jobs.Total))
			}
		}
		if len(ts.Assignees) == 0 {
			continue
		}
		fmt.Fprintln(w, "   Annotators:")
		for _, key := range sortedKeys(ts.Assignees) {
			as := ts.Assignees[key]
			fmt.Fprintf(w, "     %s:\n", Label(as.Name, key))
			fmt.Fprintf(w, "        Jobs: %s\n", jobsLine(as.Jobs))
			fmt.Fprintf(w, "        Frames: %d/%d (%d%%) | Shapes: %d\n",
				as.AnnotatedFrames, as.Frames, percent(as.AnnotatedFrames, as.Frames), as.Shapes)
		}
	}

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, "Annotator progress")
	fmt.Fprintln(w, rule)
	if len(rep.Users) == 0 {
		fmt.Fprintln(w, "   no assigned jobs found")
		return
	}
	for _, u := range rep.Users {
		fmt.Fprintf(w, "\n%s:\n", u.Label())
		fmt.Fprintf(w, "   Jobs: %s\n", jobsLine(u.Jobs))
		fmt.Fprintf(w, "   Frames: %d/%d (%d%%)\n", u.AnnotatedFrames, u.TotalFrames, u.Rate())
		fmt.Fprintf(w, "   Shapes: %d\n", u.Shapes)
		if u.AvgSpeed != nil {
			fmt.Fprintf(w, "   Average speed: %.1f frames/hour\n", *u.AvgSpeed)
		} else {
			fmt.Fprintln(w, "   Average speed: N/A")
		}
		fmt.Fprintf(w, "   Progress: [%s] %d%%\n", Bar(u.Rate()), u.Rate())
	}
}

// Daily renders the short daily text report
func Daily(rep *Report) []string {
	rule := strings.Repeat("=", 60)
	lines := []string{
		"Annotation progress - " + rep.GeneratedAt.Format(report.DayLayout),
		rule,
		"",
		"Overview",
		fmt.Sprintf("  Tasks: %d", rep.Summary.TotalTasks),
		fmt.Sprintf("  Annotators: %d", rep.Summary.TotalUsers),
		"",
		"Annotators",
		strings.Repeat("-", 60),
	}
	for _, u := range rep.Users {
		lines = append(lines,
			"",
			u.Label()+":",
			"  Jobs: "+jobsLine(u.Jobs),
			fmt.Sprintf("  Frames: %d/%d (%d%%)", u.AnnotatedFrames, u.TotalFrames, u.Rate()),
			fmt.Sprintf("  Shapes: %d", u.Shapes),
		)
	}
	return append(lines,
		"",
		rule,
		"Generated: "+rep.GeneratedAt.Format("2006-01-02 15:04:05"),
	)
}

// Write saves the JSON report and the daily text report
func Write(w *report.Writer, rep *Report) (reportPath, dailyPath string, err error) {
	if reportPath, err = w.WriteJSON("progress_report_"+report.Timestamp(rep.GeneratedAt)+".json", rep); err != nil {
		return "", "", err
	}
	name := "daily_report_" + rep.GeneratedAt.Format(report.DateLayout) + ".txt"
	if dailyPath, err = w.WriteLines(name, Daily(rep)); err != nil {
		return "", "", err
	}
	return reportPath, dailyPath, nil
}

func sortedKeys(m map[string]*AssigneeStats) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if m[out[i]].Name != m[out[j]].Name {
			return m[out[i]].Name < m[out[j]].Name
		}
		return out[i] < out[j]
	})
	return out
}
