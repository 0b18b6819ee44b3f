package cvat

import (
	"context"
	"strings"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// Operation types of background requests
const (
	OperationCreateTask        = "create:task"
	OperationImportAnnotations = "import:annotations"
)

// DataWait controls WaitForData
type DataWait struct {
	Interval time.Duration
	Timeout  time.Duration
	// LoadedRatio of the expected image count at which loading counts as done;
	// CVAT drops duplicates so the final size may be slightly lower.
	LoadedRatio float64
	// StallChecks is how many unchanged polls at size 0 are tolerated
	StallChecks int
	// OnProgress is called whenever the task size changes
	OnProgress func(DataProgress)
}

// DefaultDataWait polls every 30s for up to an hour
func DefaultDataWait() DataWait {
	return DataWait{
		Interval:    30 * time.Second,
		Timeout:     time.Hour,
		LoadedRatio: 0.95,
		StallChecks: 10,
	}
}

// DataProgress is a snapshot of a task that is loading data
type DataProgress struct {
	Size      int
	Expected  int
	Elapsed   time.Duration
	Remaining time.Duration
}

// Percent returns the integer progress percentage
func (p DataProgress) Percent() int {
	if p.Expected <= 0 {
		return 0
	}
	return p.Size * 100 / p.Expected
}

// WaitForData polls a task until its size reaches the expected image count.
// Transient polling errors are logged and polling continues.
func (c *Client) WaitForData(ctx context.Context, taskID, expected int, opts DataWait) (*Task, error) {
	defaults := DefaultDataWait()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.LoadedRatio <= 0 {
		opts.LoadedRatio = defaults.LoadedRatio
	}
	if opts.StallChecks <= 0 {
		opts.StallChecks = defaults.StallChecks
	}

	start := time.Now()
	deadline := start.Add(opts.Timeout)
	lastSize := 0
	stalled := 0

	for time.Now().Before(deadline) {
		task, err := c.GetTask(ctx, taskID)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			c.log.Warn("failed to check data loading progress",
				logger.Int("task_id", taskID),
				logger.Error(err))
		default:
			elapsed := time.Since(start)
			if task.Size != lastSize {
				progress := DataProgress{Size: task.Size, Expected: expected, Elapsed: elapsed}
				if task.Size > 0 && expected > task.Size {
					perImage := elapsed / time.Duration(task.Size)
					progress.Remaining = perImage * time.Duration(expected-task.Size)
				}
				if opts.OnProgress != nil {
					opts.OnProgress(progress)
				}
				lastSize = task.Size
				stalled = 0
			} else {
				stalled++
			}

			if float64(task.Size) >= float64(expected)*opts.LoadedRatio {
				c.log.Info("data loading finished",
					logger.Int("task_id", taskID),
					logger.Int("size", task.Size),
					logger.Duration("elapsed", elapsed))
				return task, nil
			}
			if task.Status == TaskStatusFailed {
				return task, errors.Newf("task %d failed while loading data", taskID).
					Category(errors.CategoryImport).
					Component(componentName).
					Context("task_id", taskID).
					Context("size", task.Size).
					Build()
			}
			if stalled > opts.StallChecks && task.Size == 0 {
				return task, errors.Newf("task %d made no loading progress after %d checks", taskID, stalled).
					Category(errors.CategoryImport).
					Component(componentName).
					Context("task_id", taskID).
					Build()
			}
		}

		if err := sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
	}

	return nil, errors.Newf("timed out waiting for task %d to load data: %d/%d images", taskID, lastSize, expected).
		Category(errors.CategoryTimeout).
		Component(componentName).
		Context("task_id", taskID).
		Context("size", lastSize).
		Context("expected", expected).
		Build()
}

// RequestCheck summarises the background requests of a task
type RequestCheck struct {
	Requests  []Request
	Failed    []Request
	HasErrors bool
}

// CheckRequests lists background requests of a task and logs failures with
// a diagnosis of the most common causes.
func (c *Client) CheckRequests(ctx context.Context, taskID int) (*RequestCheck, error) {
	requests, err := c.ListRequests(ctx, taskID)
	if err != nil {
		return nil, err
	}
	check := &RequestCheck{Requests: requests}
	for i := range requests {
		rq := &requests[i]
		switch {
		case rq.Status == RequestFailed:
			check.HasErrors = true
			check.Failed = append(check.Failed, *rq)
			c.log.Error("background request failed",
				logger.Int("task_id", taskID),
				logger.String("operation", rq.Operation.Type),
				logger.String("message", rq.Message),
				logger.String("diagnosis", DiagnoseFailure(rq.Message)))
		case rq.Status == RequestFinished && rq.Message != "":
			lower := strings.ToLower(rq.Message)
			if strings.Contains(lower, "error") || strings.Contains(lower, "warning") {
				c.log.Warn("background request finished with warnings",
					logger.Int("task_id", taskID),
					logger.String("operation", rq.Operation.Type),
					logger.String("message", preview(rq.Message)))
			}
		default:
			c.log.Debug("background request",
				logger.Int("task_id", taskID),
				logger.String("operation", rq.Operation.Type),
				logger.String("status", rq.Status))
		}
	}
	return check, nil
}

// RequestWait controls WaitForRequest
type RequestWait struct {
	Interval time.Duration
	Attempts int
	// OnProgress is called with requests that are still running
	OnProgress func(Request)
}

// DefaultRequestWait polls 20 times, 30s apart
func DefaultRequestWait() RequestWait {
	return RequestWait{Interval: 30 * time.Second, Attempts: 20}
}

// WaitForRequest polls until a background request of the given operation
// type finishes or fails.
func (c *Client) WaitForRequest(ctx context.Context, taskID int, operation string, opts RequestWait) (*Request, error) {
	defaults := DefaultRequestWait()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaults.Attempts
	}

	var last *Request
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		if err := sleep(ctx, opts.Interval); err != nil {
			return last, err
		}

		requests, err := c.ListRequests(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return last, err
			}
			c.log.Warn("failed to check request status",
				logger.Int("task_id", taskID),
				logger.Error(err))
			continue
		}

		rq := findRequest(requests, operation)
		if rq == nil {
			continue
		}
		last = rq
		switch rq.Status {
		case RequestFinished:
			return rq, nil
		case RequestFailed:
			return rq, errors.Newf("%s failed for task %d: %s", operation, taskID, preview(rq.Message)).
				Category(errors.CategoryImport).
				Component(componentName).
				Context("task_id", taskID).
				Context("diagnosis", DiagnoseFailure(rq.Message)).
				Build()
		default:
			if opts.OnProgress != nil {
				opts.OnProgress(*rq)
			}
		}
	}

	return last, errors.Newf("%s for task %d did not finish after %d checks", operation, taskID, opts.Attempts).
		Category(errors.CategoryTimeout).
		Component(componentName).
		Context("task_id", taskID).
		Build()
}

// findRequest returns the most recent request of an operation type. CVAT
// lists requests newest first.
func findRequest(requests []Request, operation string) *Request {
	for i := range requests {
		if strings.Contains(requests[i].Operation.Type, operation) {
			return &requests[i]
		}
	}
	return nil
}

// failureHints maps known CVAT error fragments to an explanation
var failureHints = []struct {
	fragment string
	hint     string
}{
	{"is not specified in input files", "job_file_mapping lists files that are not in server_files; check deduplication"},
	{"Could not match item id", "image paths in the annotation file do not match the loaded image paths"},
	{"can't import annotation", "annotation import failed; labels may not match or the format is wrong"},
	{"ValidationError", "request parameters were rejected"},
}

// DiagnoseFailure explains a failed request message, or returns ""
func DiagnoseFailure(message string) string {
	for _, h := range failureHints {
		if strings.Contains(message, h.fragment) {
			return h.hint
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
