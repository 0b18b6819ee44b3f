// Package reconcile compares the images in cloud storage with the images
// loaded into CVAT tasks and with the jobs that already carry annotations.
package reconcile

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// DefaultWorkers is the number of concurrent annotation probes
const DefaultWorkers = 10

// Config configures a reconciliation run
type Config struct {
	// TaskIDs limits the run to these tasks; empty means every task of the org
	TaskIDs []int
	// Excluded tasks are never inspected
	Excluded []int
	// Prefix is listed in cloud storage
	Prefix  string
	Workers int
}

// Reconciler computes annotation status
type Reconciler struct {
	client  *cvat.Client
	store   cloudstore.Store
	config  Config
	metrics *metrics.Metrics
	log     logger.Logger
}

// New returns a reconciler. store may be nil, in which case only CVAT state
// is reported.
func New(client *cvat.Client, store cloudstore.Store, config Config, m *metrics.Metrics) *Reconciler {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	return &Reconciler{
		client:  client,
		store:   store,
		config:  config,
		metrics: m,
		log:     GetLogger(),
	}
}

// TaskStatus summarises one inspected task
type TaskStatus struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Images        int    `json:"images"`
	Jobs          int    `json:"jobs"`
	AnnotatedJobs int    `json:"annotated_jobs"`
	FailedProbes  int    `json:"failed_probes,omitempty"`
}

// Summary holds the set sizes. Cloud counts are absent when no bucket is configured.
type Summary struct {
	CloudTotal       *int `json:"cloud_total,omitempty"`
	CVATLoaded       int  `json:"cvat_loaded"`
	CVATAnnotated    int  `json:"cvat_annotated"`
	CVATNotAnnotated int  `json:"cvat_not_annotated"`
	NewImages        *int `json:"new_images,omitempty"`
}

// Sessions describes the session completeness of the bucket
type Sessions struct {
	Complete   []string `json:"complete"`
	Incomplete []string `json:"incomplete"`
}

// Status is the annotation status report
type Status struct {
	Timestamp          string       `json:"timestamp"`
	Summary            Summary      `json:"summary"`
	NewImages          []string     `json:"new_images,omitempty"`
	AnnotatedImages    []string     `json:"annotated_images"`
	NotAnnotatedImages []string     `json:"not_annotated_images"`
	Sessions           *Sessions    `json:"sessions,omitempty"`
	Tasks              []TaskStatus `json:"tasks"`

	// NewImagePaths are the full bucket keys of NewImages, in the same order
	NewImagePaths []string `json:"-"`
}

// Run collects cloud and CVAT state and computes the set differences
func (r *Reconciler) Run(ctx context.Context) (*Status, error) {
	var inv *cloudstore.Inventory
	if r.store != nil {
		objects, err := r.store.List(ctx, r.config.Prefix)
		if err != nil {
			return nil, err
		}
		inv = cloudstore.BuildInventory(cloudstore.Keys(objects))
		r.log.Info("cloud storage sessions",
			logger.Int("complete", len(inv.Complete())),
			logger.Int("incomplete", len(inv.Incomplete())),
			logger.Int("images", len(inv.Paths)))
		for _, id := range inv.Incomplete() {
			r.log.Debug("skipping session without metadata",
				logger.String("session", id),
				logger.Int("images", len(inv.Sessions[id].Images)))
		}
	} else {
		r.log.Warn("no cloud storage configured, reporting CVAT state only")
	}

	tasks, err := r.client.SelectTasks(ctx, r.config.TaskIDs, r.config.Excluded)
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]struct{})
	annotated := make(map[string]struct{})
	status := &Status{Timestamp: time.Now().Format(time.RFC3339)}

	for i := range tasks {
		task := &tasks[i]
		ts, err := r.inspectTask(ctx, task, loaded, annotated)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Error("failed to inspect task",
				logger.Int("task_id", task.ID),
				logger.Error(err))
			continue
		}
		r.log.Info("task inspected",
			logger.Int("task_id", task.ID),
			logger.String("name", task.Name),
			logger.Int("images", ts.Images),
			logger.Int("annotated_jobs", ts.AnnotatedJobs),
			logger.Int("jobs", ts.Jobs))
		status.Tasks = append(status.Tasks, ts)
	}

	status.AnnotatedImages = sortedKeys(annotated)
	status.NotAnnotatedImages = difference(loaded, annotated)
	status.Summary = Summary{
		CVATLoaded:       len(loaded),
		CVATAnnotated:    len(annotated),
		CVATNotAnnotated: len(status.NotAnnotatedImages),
	}

	if inv != nil {
		cloud := inv.Basenames()
		status.NewImages = difference(cloud, loaded)
		status.NewImagePaths = make([]string, len(status.NewImages))
		for i, base := range status.NewImages {
			status.NewImagePaths[i] = inv.Paths[base]
		}
		cloudTotal, newCount := len(cloud), len(status.NewImages)
		status.Summary.CloudTotal = &cloudTotal
		status.Summary.NewImages = &newCount
		status.Sessions = &Sessions{Complete: inv.Complete(), Incomplete: inv.Incomplete()}
	}

	return status, nil
}

func (r *Reconciler) inspectTask(ctx context.Context, task *cvat.Task, loaded, annotated map[string]struct{}) (TaskStatus, error) {
	ts := TaskStatus{ID: task.ID, Name: task.Name}

	meta, err := r.client.TaskDataMeta(ctx, task.ID)
	if err != nil {
		return ts, err
	}
	names := meta.FrameNames()
	bases := make([]string, len(names))
	for i, n := range names {
		bases[i] = session.Basename(n)
		loaded[bases[i]] = struct{}{}
	}
	ts.Images = len(names)

	jobs, err := r.client.ListJobs(ctx, task.ID)
	if err != nil {
		return ts, err
	}
	ts.Jobs = len(jobs)

	has, failed, err := r.probeJobs(ctx, jobs)
	if err != nil {
		return ts, err
	}
	ts.FailedProbes = failed

	for i, j := range jobs {
		if !has[i] {
			continue
		}
		ts.AnnotatedJobs++
		for f := j.StartFrame; f <= j.StopFrame && f < len(bases); f++ {
			if f >= 0 {
				annotated[bases[f]] = struct{}{}
			}
		}
	}
	return ts, nil
}

// probeJobs asks CVAT whether each job has annotations, with bounded
// concurrency. A failed probe counts as "not annotated"; only context
// cancellation aborts the fan-out.
func (r *Reconciler) probeJobs(ctx context.Context, jobs []cvat.Job) (has []bool, failed int, err error) {
	has = make([]bool, len(jobs))
	var done, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i := range jobs {
		g.Go(func() error {
			ok, err := r.client.HasAnnotations(gctx, jobs[i].ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures.Add(1)
				r.metrics.RecordItem("probe", "failed")
				r.log.Warn("annotation probe failed",
					logger.Int("job_id", jobs[i].ID),
					logger.Error(err))
			} else {
				has[i] = ok
				r.metrics.RecordItem("probe", "ok")
			}
			if n := done.Add(1); n%10 == 0 || int(n) == len(jobs) {
				r.log.Debug("probe progress", logger.Int64("done", n), logger.Int("total", len(jobs)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return has, int(failures.Load()), nil
}

// Write saves the status report and, when there are new images, the list of
// their bucket keys for import. It returns the written paths.
func Write(w *report.Writer, status *Status, now time.Time) (statusPath, newImagesPath string, err error) {
	ts := report.Timestamp(now)
	if statusPath, err = w.WriteJSON("annotation_status_"+ts+".json", status); err != nil {
		return "", "", err
	}
	if len(status.NewImagePaths) > 0 {
		if newImagesPath, err = w.WriteLines(NewImagesFile(ts), status.NewImagePaths); err != nil {
			return "", "", err
		}
	}
	return statusPath, newImagesPath, nil
}

// NewImagesFile is the name of the new image list written at ts
func NewImagesFile(ts string) string {
	return "new_images_" + ts + ".txt"
}

// NewImagesPattern matches every new image list
const NewImagesPattern = "new_images_*.txt"

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// difference returns the sorted members of a that are not in b
func difference(a, b map[string]struct{}) []string {
	out := make([]string, 0, len(a))
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
