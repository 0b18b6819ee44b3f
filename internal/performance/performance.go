// Package performance measures how many frames each annotator finished per
// day by diffing job snapshots taken at the end of consecutive days.
package performance

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/progress"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/store"
)

// MinSpeedHours is the shortest work interval that yields a speed
const MinSpeedHours = 0.1

// SummaryFile accumulates the rows of every run
const SummaryFile = "performance_summary.csv"

// Header is the column order of the performance CSVs
var Header = []string{
	"date", "user", "today_frames", "today_shapes", "total_frames",
	"total_shapes", "job_frames", "jobs", "avg_speed",
}

// JobData is the state of one job at collection time. Assignee is the
// display name; Username identifies the assignee since names repeat.
type JobData struct {
	JobID           int
	TaskID          int
	Assignee        string
	Username        string
	FrameCount      int
	AnnotatedFrames int
	Shapes          int
	WorkStart       time.Time
	UpdatedDate     time.Time
}

// Row is one annotator's performance on a day
type Row struct {
	Date        string
	User        string
	Username    string
	TodayFrames int
	TodayShapes int
	TotalFrames int
	TotalShapes int
	JobFrames   int
	Jobs        int
	// AvgSpeed is frames per hour, nil when no job had a usable interval
	AvgSpeed *float64
}

// Speed formats AvgSpeed with one decimal, or N/A
func (r *Row) Speed() string {
	if r.AvgSpeed == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*r.AvgSpeed, 'f', 1, 64)
}

// Record renders the row as CSV fields in Header order
func (r *Row) Record() []string {
	return []string{
		r.Date,
		r.User,
		strconv.Itoa(r.TodayFrames),
		strconv.Itoa(r.TodayShapes),
		strconv.Itoa(r.TotalFrames),
		strconv.Itoa(r.TotalShapes),
		strconv.Itoa(r.JobFrames),
		strconv.Itoa(r.Jobs),
		r.Speed(),
	}
}

// ParseDate validates a YYYYMMDD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(report.DateLayout, s, time.Local)
	if err != nil || len(s) != len(report.DateLayout) {
		return time.Time{}, errors.Newf("invalid date %q, expected YYYYMMDD", s).
			Category(errors.CategoryValidation).
			Component("performance").
			Context("date", s).
			Build()
	}
	return t, nil
}

// PreviousDate returns the day before date, both YYYYMMDD
func PreviousDate(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(report.DateLayout), nil
}

type userAcc struct {
	row    Row
	speeds []float64
}

// Compute credits each job's growth since previous to its current assignee.
// Jobs missing from previous count in full; shrinking jobs add nothing.
// previous may be nil. Rows are sorted by today's frames, highest first.
func Compute(date string, jobs []JobData, previous *store.Snapshot) []Row {
	users := make(map[string]*userAcc)
	for i := range jobs {
		j := &jobs[i]
		if j.Assignee == "" {
			continue
		}
		key := j.Username
		if key == "" {
			key = j.Assignee
		}
		acc := users[key]
		if acc == nil {
			acc = &userAcc{row: Row{Date: date, User: j.Assignee, Username: key}}
			users[key] = acc
		}
		acc.row.TotalFrames += j.AnnotatedFrames
		acc.row.TotalShapes += j.Shapes
		acc.row.JobFrames += j.FrameCount
		acc.row.Jobs++

		var before store.JobCounts
		known := false
		if previous != nil {
			before, known = previous.Jobs[strconv.Itoa(j.JobID)]
		}
		if known {
			if d := j.AnnotatedFrames - before.AnnotatedFrames; d > 0 {
				acc.row.TodayFrames += d
			}
			if d := j.Shapes - before.Shapes; d > 0 {
				acc.row.TodayShapes += d
			}
		} else {
			acc.row.TodayFrames += j.AnnotatedFrames
			acc.row.TodayShapes += j.Shapes
		}

		if j.AnnotatedFrames > 0 && !j.WorkStart.IsZero() && !j.UpdatedDate.IsZero() {
			if hours := j.UpdatedDate.Sub(j.WorkStart).Hours(); hours > MinSpeedHours {
				acc.speeds = append(acc.speeds, float64(j.AnnotatedFrames)/hours)
			}
		}
	}

	shared := make(map[string]int, len(users))
	for _, acc := range users {
		shared[acc.row.User]++
	}
	rows := make([]Row, 0, len(users))
	for _, acc := range users {
		if shared[acc.row.User] > 1 {
			acc.row.User = progress.Label(acc.row.User, acc.row.Username)
		}
		if len(acc.speeds) > 0 {
			var sum float64
			for _, s := range acc.speeds {
				sum += s
			}
			avg := sum / float64(len(acc.speeds))
			acc.row.AvgSpeed = &avg
		}
		rows = append(rows, acc.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TodayFrames != rows[j].TodayFrames {
			return rows[i].TodayFrames > rows[j].TodayFrames
		}
		return rows[i].User < rows[j].User
	})
	return rows
}

// SnapshotOf captures the counts of every collected job
func SnapshotOf(date string, jobs []JobData, at time.Time) *store.Snapshot {
	snap := &store.Snapshot{Date: date, GeneratedAt: at, Jobs: make(map[string]store.JobCounts, len(jobs))}
	for i := range jobs {
		snap.Jobs[strconv.Itoa(jobs[i].JobID)] = store.JobCounts{
			AnnotatedFrames: jobs[i].AnnotatedFrames,
			Shapes:          jobs[i].Shapes,
		}
	}
	return snap
}

// Config selects tasks
type Config struct {
	Excluded []int
}

// Checker collects job state and produces daily performance reports
type Checker struct {
	client  *cvat.Client
	store   store.Interface
	reports *report.Writer
	config  Config
	now     func() time.Time
	log     logger.Logger
}

// New returns a checker writing CSVs to reports
func New(client *cvat.Client, st store.Interface, reports *report.Writer, config Config) *Checker {
	return &Checker{
		client:  client,
		store:   st,
		reports: reports,
		config:  config,
		now:     time.Now,
		log:     GetLogger(),
	}
}

// Result is the outcome of a daily report
type Result struct {
	Date string
	Rows []Row
	// HasPrevious is false when no snapshot of the day before exists, in
	// which case today's numbers equal the totals
	HasPrevious   bool
	SnapshotSaved bool
	CSVPath       string
	SummaryPath   string
}

// TotalToday sums today's frames over every user
func (r *Result) TotalToday() int {
	total := 0
	for i := range r.Rows {
		total += r.Rows[i].TodayFrames
	}
	return total
}

// Run reports date (YYYYMMDD, empty for today). The snapshot is only saved
// when date is today.
func (c *Checker) Run(ctx context.Context, date string) (*Result, error) {
	today := c.now().Format(report.DateLayout)
	if date == "" {
		date = today
	}
	previousDate, err := PreviousDate(date)
	if err != nil {
		return nil, err
	}

	jobs, err := c.Collect(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Date: date}
	previous, err := c.store.LoadSnapshot(ctx, previousDate)
	switch {
	case err == nil:
		res.HasPrevious = true
	case errors.IsNotFound(err):
		c.log.Warn("no snapshot for previous day, today's numbers are totals",
			logger.String("previous_date", previousDate))
		previous = nil
	default:
		return nil, err
	}

	res.Rows = Compute(date, jobs, previous)

	if date == today {
		if err := c.store.SaveSnapshot(ctx, SnapshotOf(today, jobs, c.now())); err != nil {
			return res, err
		}
		res.SnapshotSaved = true
	}

	records := make([][]string, len(res.Rows))
	for i := range res.Rows {
		records[i] = res.Rows[i].Record()
	}
	if res.CSVPath, err = c.reports.WriteCSV("daily_performance_"+date+".csv", Header, records, report.CSVOptions{}); err != nil {
		return res, err
	}
	if res.SummaryPath, err = c.reports.AppendCSV(SummaryFile, Header, records); err != nil {
		return res, err
	}
	c.log.Info("performance report written",
		logger.String("date", date),
		logger.Int("users", len(res.Rows)),
		logger.Int("today_frames", res.TotalToday()),
		logger.String("path", res.CSVPath))
	return res, nil
}

// Backfill saves a snapshot for a past date. Jobs updated after the end of
// that day (UTC) are recorded with zero counts.
func (c *Checker) Backfill(ctx context.Context, date string) (*store.Snapshot, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	cutoff := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, time.UTC)

	tasks, err := c.client.SelectTasks(ctx, nil, c.config.Excluded)
	if err != nil {
		return nil, err
	}
	snap := &store.Snapshot{
		Date:        date,
		GeneratedAt: c.now(),
		Note:        "backfilled from jobs updated on or before " + cutoff.Format("2006-01-02T15:04:05"),
		Jobs:        make(map[string]store.JobCounts),
	}
	included, excluded := 0, 0
	for i := range tasks {
		jobs, err := c.client.ListJobs(ctx, tasks[i].ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("failed to list jobs", logger.Int("task_id", tasks[i].ID), logger.Error(err))
			continue
		}
		for j := range jobs {
			job := &jobs[j]
			key := strconv.Itoa(job.ID)
			if job.UpdatedDate.IsZero() || job.UpdatedDate.After(cutoff) {
				snap.Jobs[key] = store.JobCounts{}
				excluded++
				continue
			}
			stats, err := c.stats(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			snap.Jobs[key] = store.JobCounts{AnnotatedFrames: stats.AnnotatedFrames, Shapes: stats.Shapes}
			included++
		}
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	c.log.Info("snapshot backfilled",
		logger.String("date", date),
		logger.Int("included_jobs", included),
		logger.Int("excluded_jobs", excluded))
	return snap, nil
}

// Collect reads the current state of every job of every selected task
func (c *Checker) Collect(ctx context.Context) ([]JobData, error) {
	tasks, err := c.client.SelectTasks(ctx, nil, c.config.Excluded)
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

	var out []JobData
	for i := range tasks {
		task := &tasks[i]
		jobs, err := c.client.ListJobs(ctx, task.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("failed to list jobs", logger.Int("task_id", task.ID), logger.Error(err))
			continue
		}
		c.log.Debug("collecting task", logger.Int("task_id", task.ID), logger.Int("jobs", len(jobs)))
		for j := range jobs {
			job := &jobs[j]
			stats, err := c.stats(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			d := JobData{
				JobID:           job.ID,
				TaskID:          task.ID,
				FrameCount:      job.FrameCount(),
				AnnotatedFrames: stats.AnnotatedFrames,
				Shapes:          stats.Shapes,
				WorkStart:       job.WorkStart(),
				UpdatedDate:     job.UpdatedDate,
			}
			if job.Assignee != nil {
				d.Assignee = progress.AssigneeName(job.Assignee, names)
				d.Username = progress.UserKey(job.Assignee)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// stats returns zero counts for jobs whose annotations cannot be read; only
// cancellation is an error
func (c *Checker) stats(ctx context.Context, jobID int) (cvat.AnnotationStats, error) {
	stats, err := c.client.JobAnnotationStats(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		c.log.Debug("could not read job annotations", logger.Int("job_id", jobID), logger.Error(err))
		return cvat.AnnotationStats{}, nil
	}
	return stats, nil
}

// Print writes the human readable report
func Print(w io.Writer, res *Result) {
	rule := strings.Repeat("=", 80)
	day, _ := ParseDate(res.Date)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Performance %s\n", day.Format(report.DayLayout))
	fmt.Fprintln(w, rule)
	if !res.HasPrevious {
		fmt.Fprintln(w, "\nNo snapshot of the previous day, today's numbers are totals")
	}
	fmt.Fprintf(w, "\nTotal today: %d frames\n", res.TotalToday())
	for i := range res.Rows {
		r := &res.Rows[i]
		fmt.Fprintf(w, "\n%s:\n", r.User)
		fmt.Fprintf(w, "   Today: %d frames (%d shapes)\n", r.TodayFrames, r.TodayShapes)
		fmt.Fprintf(w, "   Total: %d/%d frames\n", r.TotalFrames, r.JobFrames)
		fmt.Fprintf(w, "   Jobs: %d\n", r.Jobs)
		fmt.Fprintf(w, "   Average speed: %s frames/hour\n", r.Speed())
	}
	fmt.Fprintln(w, "\n"+rule)
}
