// Package migrate moves a HumanSignal COCO export into CVAT: it creates a
// task from the exported images in cloud storage, uploads the converted
// annotations and records which job holds which session.
package migrate

import (
	"context"
	"fmt"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/loader"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// LabelColor is the color of labels created from dataset categories
const LabelColor = "#ff00ff"

// Config configures a migration
type Config struct {
	TaskName       string
	CloudStorageID int
	// Prefix is the cloud storage directory holding the exported images
	Prefix       string
	UseMapping   bool
	ImageQuality int
	Wait         cvat.DataWait
	RequestWait  cvat.RequestWait
}

// Migrator runs migrations
type Migrator struct {
	client  *cvat.Client
	logs    *report.Writer
	config  Config
	metrics *metrics.Metrics
	log     logger.Logger
}

// New returns a migrator writing debug files and mappings to logs
func New(client *cvat.Client, logs *report.Writer, config Config, m *metrics.Metrics) *Migrator {
	return &Migrator{
		client:  client,
		logs:    logs,
		config:  config,
		metrics: m,
		log:     GetLogger(),
	}
}

// Plan is a dataset split into sessions and the job file mapping built
// from them
type Plan struct {
	Dataset  *coco.Dataset
	Groups   map[string]*coco.Group
	Files    *mapping.JobFiles
	Unmapped []string
}

// Prepare groups the dataset by session and builds its job file mapping.
// A mapping that references files outside the server file list is an error.
func Prepare(d *coco.Dataset, prefix string) (*Plan, error) {
	groups := coco.GroupBySession(d, session.LegacyParts)
	if len(groups) == 0 {
		return nil, errors.Newf("no session found in %d images", len(d.Images)).
			Category(errors.CategoryValidation).
			Component("migrate").
			Build()
	}
	files := mapping.FromCOCO(groups, prefix)
	unmapped, err := files.Validate()
	if err != nil {
		return nil, err
	}
	return &Plan{Dataset: d, Groups: groups, Files: files, Unmapped: unmapped}, nil
}

// Result summarises a migration
type Result struct {
	TaskID      int
	TaskURL     string
	Sessions    int
	Files       int
	Jobs        int
	Loaded      int
	Converted   coco.ConvertStats
	Import      *cvat.Request
	Requests    *cvat.RequestCheck
	DebugPath   string
	MappingPath string
}

// Run migrates d. The returned result is non-nil once the task exists, so
// callers can point the user at it when a later step fails.
func (m *Migrator) Run(ctx context.Context, d *coco.Dataset) (*Result, error) {
	plan, err := Prepare(d, m.config.Prefix)
	if err != nil {
		return nil, err
	}
	for _, id := range plan.Files.Sessions {
		m.log.Debug("session", logger.String("session", id), logger.Int("images", len(plan.Groups[id].Images)))
	}
	if len(plan.Unmapped) > 0 {
		m.log.Warn("server files not referenced by any job",
			logger.Int("count", len(plan.Unmapped)))
	}
	m.log.Info("migration plan",
		logger.Int("images", len(d.Images)),
		logger.Int("annotations", len(d.Annotations)),
		logger.Int("sessions", len(plan.Files.Sessions)),
		logger.Int("server_files", len(plan.Files.ServerFiles)),
		logger.Int("mapped_files", plan.Files.References()))

	res := &Result{Sessions: len(plan.Files.Sessions), Files: len(plan.Files.ServerFiles)}
	spec := &loader.Spec{
		Name:           m.config.TaskName,
		Labels:         loader.LabelSpecs(d.LabelNames(), LabelColor),
		CloudStorageID: m.config.CloudStorageID,
		Files:          plan.Files,
		UseMapping:     m.config.UseMapping,
		ImageQuality:   m.config.ImageQuality,
		Wait:           m.config.Wait,
		BeforeAttach: func(task *cvat.Task, req cvat.DataRequest) error {
			path, err := m.writeDebugRequest(task.ID, req, plan.Files.Sessions)
			if err != nil {
				m.log.Warn("could not write debug request", logger.Error(err))
				return nil
			}
			res.DebugPath = path
			return nil
		},
	}
	loaded, err := loader.Load(ctx, m.client, spec)
	if loaded != nil && loaded.Task != nil {
		res.TaskID = loaded.Task.ID
		res.TaskURL = m.client.TaskURL(loaded.Task.ID)
	}
	if err != nil {
		m.metrics.RecordItem("migrate", "failed")
		return res, err
	}
	res.Jobs = len(loaded.Jobs)

	names := m.loadedFiles(ctx, res.TaskID, plan.Files.ServerFiles)
	res.Loaded = len(names)

	if err := m.uploadAnnotations(ctx, res, d, names); err != nil {
		m.metrics.RecordItem("migrate", "failed")
		return res, err
	}

	if check, err := m.client.CheckRequests(ctx, res.TaskID); err != nil {
		m.log.Warn("could not list background requests", logger.Error(err))
	} else {
		res.Requests = check
	}

	entries := mapping.JobSessions(loaded.Jobs, plan.Files.Sessions, nil)
	if res.MappingPath, err = m.logs.WriteJSON(mapping.FileName(res.TaskID), entries); err != nil {
		return res, err
	}
	m.metrics.RecordItem("migrate", "success")
	m.log.Info("migration finished",
		logger.Int("task_id", res.TaskID),
		logger.String("task_url", res.TaskURL),
		logger.Int("jobs", res.Jobs),
		logger.Int("loaded", res.Loaded),
		logger.Int("images", res.Converted.Images),
		logger.Int("annotations", res.Converted.Annotations))
	return res, nil
}

// loadedFiles returns the frame names CVAT reports for the task, falling
// back to the requested files when the data meta is unavailable
func (m *Migrator) loadedFiles(ctx context.Context, taskID int, requested []string) map[string]struct{} {
	names := requested
	if meta, err := m.client.TaskDataMeta(ctx, taskID); err != nil {
		m.log.Warn("could not read task data meta, using requested files",
			logger.Int("task_id", taskID),
			logger.Error(err))
	} else if frames := meta.FrameNames(); len(frames) > 0 {
		names = frames
	}
	if len(names) < len(requested) {
		m.log.Warn("fewer files loaded than requested",
			logger.Int("task_id", taskID),
			logger.Int("requested", len(requested)),
			logger.Int("loaded", len(names)))
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (m *Migrator) uploadAnnotations(ctx context.Context, res *Result, d *coco.Dataset, loaded map[string]struct{}) error {
	converted, stats := coco.Convert(d, m.config.Prefix, loaded)
	res.Converted = stats
	if stats.Skipped > 0 {
		m.log.Warn("images skipped because CVAT did not load them",
			logger.Int("skipped", stats.Skipped))
	}
	if stats.Images == 0 {
		m.log.Error("no loaded image matches the export, nothing to upload",
			logger.Int("task_id", res.TaskID),
			logger.Int("loaded", len(loaded)),
			logger.Int("skipped", stats.Skipped))
		return errors.Newf("none of the %d loaded files matches an exported image", len(loaded)).
			Category(errors.CategoryValidation).
			Component("migrate").
			Context("task_id", res.TaskID).
			Build()
	}
	rq, err := Upload(ctx, m.client, res.TaskID, converted, m.config.RequestWait)
	res.Import = rq
	return err
}

// Upload archives d, uploads it to a task and waits for the import
func Upload(ctx context.Context, client *cvat.Client, taskID int, d *coco.Dataset, wait cvat.RequestWait) (*cvat.Request, error) {
	log := GetLogger()
	archive, err := coco.Archive(d)
	if err != nil {
		return nil, err
	}
	log.Info("uploading annotations",
		logger.Int("task_id", taskID),
		logger.Int("images", len(d.Images)),
		logger.Int("annotations", len(d.Annotations)),
		logger.Int("bytes", len(archive)))
	if _, err := client.UploadAnnotations(ctx, taskID, cvat.FormatCOCO, archive); err != nil {
		return nil, err
	}
	rq, err := client.WaitForRequest(ctx, taskID, cvat.OperationImportAnnotations, wait)
	if err != nil {
		log.Error("annotation import did not finish",
			logger.Int("task_id", taskID),
			logger.String("task_url", client.TaskURL(taskID)),
			logger.Error(err))
		return rq, err
	}
	log.Info("annotations imported", logger.Int("task_id", taskID))
	return rq, nil
}

// debugRequest is a trimmed copy of the attach request kept for inspection
type debugRequest struct {
	TaskID               int        `json:"task_id"`
	ServerFilesCount     int        `json:"server_files_count"`
	ServerFilesSample    []string   `json:"server_files_sample"`
	JobFileMappingCount  int        `json:"job_file_mapping_count"`
	JobFileMappingSample [][]string `json:"job_file_mapping_sample"`
	SessionNames         []string   `json:"session_names"`
}

func (m *Migrator) writeDebugRequest(taskID int, req cvat.DataRequest, sessions []string) (string, error) {
	dbg := debugRequest{
		TaskID:              taskID,
		ServerFilesCount:    len(req.ServerFiles),
		ServerFilesSample:   head(req.ServerFiles, 10),
		JobFileMappingCount: len(req.JobFileMapping),
		SessionNames:        head(sessions, 10),
	}
	for _, job := range head(req.JobFileMapping, 3) {
		dbg.JobFileMappingSample = append(dbg.JobFileMappingSample, head(job, 5))
	}
	return m.logs.WriteJSON(fmt.Sprintf("debug_request_%d.json", taskID), dbg)
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
