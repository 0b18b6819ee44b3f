// Package importnew loads cloud storage images that are not in CVAT yet into
// a new task and hands its jobs out to the configured annotators.
package importnew

import (
	"context"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/assign"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/loader"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/reconcile"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// TaskNamePrefix starts the name of every task created by an import
const TaskNamePrefix = "New Data Import - "

// Config configures an import
type Config struct {
	CloudStorageID int
	Labels         []cvat.LabelSpec
	UseMapping     bool
	ImageQuality   int
	Assignees      []assign.Person
	Wait           cvat.DataWait
}

// Importer runs imports
type Importer struct {
	client  *cvat.Client
	logs    *report.Writer
	config  Config
	metrics *metrics.Metrics
	now     func() time.Time
	log     logger.Logger
}

// New returns an importer that reads lists from and writes mappings to logs
func New(client *cvat.Client, logs *report.Writer, config Config, m *metrics.Metrics) *Importer {
	return &Importer{
		client:  client,
		logs:    logs,
		config:  config,
		metrics: m,
		now:     time.Now,
		log:     GetLogger(),
	}
}

// Result summarises an import
type Result struct {
	Source      string
	Files       int
	TaskID      int
	TaskName    string
	TaskURL     string
	Jobs        int
	Assigned    assign.Result
	MappingPath string
}

// ResolveList returns listPath, or the newest new image list when empty
func (im *Importer) ResolveList(listPath string) (string, error) {
	if listPath != "" {
		return listPath, nil
	}
	return im.logs.Latest(reconcile.NewImagesPattern)
}

// Run imports the files named in listPath, one bucket key per line. An
// empty list is not an error; the result then has no task.
func (im *Importer) Run(ctx context.Context, listPath string) (*Result, error) {
	path, err := im.ResolveList(listPath)
	if err != nil {
		return nil, err
	}
	files, err := report.ReadLines(im.logs.Fs(), path)
	if err != nil {
		return nil, err
	}
	res := &Result{Source: path, Files: len(files)}
	im.log.Info("read new image list", logger.String("path", path), logger.Int("files", len(files)))
	if len(files) == 0 {
		im.log.Info("no new images to import")
		return res, nil
	}

	groups := session.GroupFiles(files)
	jobFiles := mapping.FromFiles(groups)
	for _, id := range jobFiles.Sessions {
		im.log.Debug("session", logger.String("session", id), logger.Int("images", len(groups[id])))
	}

	spec := &loader.Spec{
		Name:           TaskNamePrefix + report.Timestamp(im.now()),
		Labels:         im.config.Labels,
		CloudStorageID: im.config.CloudStorageID,
		Files:          jobFiles,
		UseMapping:     im.config.UseMapping,
		ImageQuality:   im.config.ImageQuality,
		Wait:           im.config.Wait,
	}
	loaded, err := loader.Load(ctx, im.client, spec)
	if loaded != nil && loaded.Task != nil {
		res.TaskID = loaded.Task.ID
		res.TaskName = spec.Name
		res.TaskURL = im.client.TaskURL(loaded.Task.ID)
	}
	if err != nil {
		return res, err
	}
	res.Jobs = len(loaded.Jobs)
	im.metrics.RecordItem("import", "task")

	if len(im.config.Assignees) > 0 && len(loaded.Jobs) > 0 {
		plan := assign.RoundRobin(loaded.Jobs, im.config.Assignees, jobFiles.Sessions)
		if res.Assigned, err = assign.Apply(ctx, im.client, plan, im.metrics); err != nil {
			return res, err
		}
	} else if len(im.config.Assignees) == 0 {
		im.log.Info("no assignees configured, jobs left unassigned")
	}

	entries := mapping.JobSessions(loaded.Jobs, jobFiles.Sessions, nil)
	if res.MappingPath, err = im.logs.WriteJSON(mapping.FileName(res.TaskID), entries); err != nil {
		return res, err
	}
	im.log.Info("import finished",
		logger.Int("task_id", res.TaskID),
		logger.String("task_url", res.TaskURL),
		logger.Int("jobs", res.Jobs),
		logger.Int("files", res.Files),
		logger.Int("assigned", res.Assigned.Assigned))
	return res, nil
}
