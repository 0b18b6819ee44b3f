// Package loader creates a CVAT task from cloud storage files and waits for
// CVAT to finish loading them.
package loader

import (
	"context"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
)

// Spec describes the task to create
type Spec struct {
	Name           string
	Labels         []cvat.LabelSpec
	CloudStorageID int
	Files          *mapping.JobFiles
	// UseMapping sends the job file mapping so each session becomes one job
	UseMapping   bool
	ImageQuality int
	Wait         cvat.DataWait
	// BeforeAttach runs after the task exists and before data is attached
	BeforeAttach func(task *cvat.Task, req cvat.DataRequest) error
}

// Result is what was created. Task is set as soon as the task exists, also
// when a later step fails.
type Result struct {
	Task     *cvat.Task
	Jobs     []cvat.Job
	Requests *cvat.RequestCheck
}

// DataRequest builds the attach request for spec
func (s *Spec) DataRequest() cvat.DataRequest {
	var jobs [][]string
	if s.UseMapping {
		jobs = s.Files.Jobs
	}
	return cvat.NewDataRequest(s.CloudStorageID, s.Files.ServerFiles, jobs, s.ImageQuality)
}

// Load creates the task, attaches the files, waits for loading and returns
// the task's jobs in start-frame order.
func Load(ctx context.Context, client *cvat.Client, spec *Spec) (*Result, error) {
	log := GetLogger()
	if spec.Files == nil || len(spec.Files.ServerFiles) == 0 {
		return nil, errors.Newf("no files to load").
			Category(errors.CategoryValidation).
			Component("loader").
			Build()
	}

	task, err := client.CreateTask(ctx, cvat.TaskSpec{Name: spec.Name, Labels: spec.Labels})
	if err != nil {
		return nil, err
	}
	res := &Result{Task: task}

	req := spec.DataRequest()
	if spec.BeforeAttach != nil {
		if err := spec.BeforeAttach(task, req); err != nil {
			return res, err
		}
	}

	log.Info("attaching data",
		logger.Int("task_id", task.ID),
		logger.Int("files", len(req.ServerFiles)),
		logger.Int("jobs", len(req.JobFileMapping)),
		logger.Bool("job_file_mapping", spec.UseMapping))
	if _, err := client.AttachData(ctx, task.ID, req); err != nil {
		return res, err
	}

	expected := len(req.ServerFiles)
	if task, err = client.WaitForData(ctx, task.ID, expected, spec.Wait); err != nil {
		if ctx.Err() == nil {
			if _, cerr := client.CheckRequests(ctx, res.Task.ID); cerr != nil {
				log.Warn("could not list background requests", logger.Error(cerr))
			}
		}
		log.Error("data loading did not finish, check the task in CVAT",
			logger.String("task_url", client.TaskURL(res.Task.ID)),
			logger.Error(err))
		return res, err
	}
	res.Task = task

	jobs, err := client.ListJobsByStartFrame(ctx, task.ID)
	if err != nil {
		return res, err
	}
	res.Jobs = jobs
	if spec.UseMapping && len(jobs) != len(spec.Files.Jobs) {
		log.Warn("job count differs from job file mapping",
			logger.Int("task_id", task.ID),
			logger.Int("expected", len(spec.Files.Jobs)),
			logger.Int("actual", len(jobs)))
	}

	check, err := client.CheckRequests(ctx, task.ID)
	if err != nil {
		log.Warn("could not list background requests", logger.Error(err))
	} else {
		res.Requests = check
		if check.HasErrors {
			log.Error("data loading reported errors, check the cloud storage paths",
				logger.Int("task_id", task.ID),
				logger.Int("failed_requests", len(check.Failed)))
		}
	}
	return res, nil
}

// LabelSpecs converts names to label specs sharing one color
func LabelSpecs(names []string, color string) []cvat.LabelSpec {
	out := make([]cvat.LabelSpec, len(names))
	for i, n := range names {
		out[i] = cvat.LabelSpec{Name: n, Color: color}
	}
	return out
}
