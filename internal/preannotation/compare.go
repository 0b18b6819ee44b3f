package preannotation

import (
	"context"
	"strconv"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// Comparison statuses
const (
	StatusAnnotated         = "annotated"
	StatusPendingWithPre    = "pending-with-pre"
	StatusPendingWithoutPre = "pending-without-pre"
)

// Unassigned names jobs without an assignee
const Unassigned = "unassigned"

// ComparisonFile holds the full comparison as JSON
const ComparisonFile = "annotation_comparison.json"

// ComparisonHeader is the column order of the comparison CSV
var ComparisonHeader = []string{
	"job_id", "task_id", "assignee", "chunk_id", "frame_count",
	"human_annotated_frames", "human_shapes", "pre_frames",
	"pre_annotated_frames", "pre_annotations", "status",
}

// Comparison sets a job's human work against its chunk's preannotations
type Comparison struct {
	JobID                int    `json:"job_id"`
	TaskID               int    `json:"task_id"`
	TaskName             string `json:"task_name"`
	Assignee             string `json:"assignee"`
	ChunkID              string `json:"chunk_id"`
	FrameCount           int    `json:"frame_count"`
	HumanAnnotatedFrames int    `json:"human_annotated_frames"`
	HumanShapes          int    `json:"human_shapes"`
	PreFrames            int    `json:"pre_frames"`
	PreAnnotatedFrames   int    `json:"pre_annotated_frames"`
	PreAnnotations       int    `json:"pre_annotations"`
	Status               string `json:"status"`
}

// Record renders the comparison as CSV fields in ComparisonHeader order
func (c *Comparison) Record() []string {
	return []string{
		strconv.Itoa(c.JobID),
		strconv.Itoa(c.TaskID),
		c.Assignee,
		c.ChunkID,
		strconv.Itoa(c.FrameCount),
		strconv.Itoa(c.HumanAnnotatedFrames),
		strconv.Itoa(c.HumanShapes),
		strconv.Itoa(c.PreFrames),
		strconv.Itoa(c.PreAnnotatedFrames),
		strconv.Itoa(c.PreAnnotations),
		c.Status,
	}
}

// CompareStatus classifies a job. Human work wins over preannotations.
func CompareStatus(humanFrames, preAnnotatedFrames int) string {
	switch {
	case humanFrames > 0:
		return StatusAnnotated
	case preAnnotatedFrames > 0:
		return StatusPendingWithPre
	default:
		return StatusPendingWithoutPre
	}
}

// CompareResult holds every compared job
type CompareResult struct {
	Jobs     []Comparison
	CSVPath  string
	JSONPath string
}

// Counts returns how many jobs fall into each status
func (r *CompareResult) Counts() map[string]int {
	out := map[string]int{StatusAnnotated: 0, StatusPendingWithPre: 0, StatusPendingWithoutPre: 0}
	for i := range r.Jobs {
		out[r.Jobs[i].Status]++
	}
	return out
}

// Comparer builds the comparison report
type Comparer struct {
	client   *cvat.Client
	reports  *report.Writer
	excluded []int
	now      func() time.Time
	log      logger.Logger
}

// NewComparer returns a comparer reading details from and writing to reports
func NewComparer(client *cvat.Client, reports *report.Writer, excluded []int) *Comparer {
	return &Comparer{client: client, reports: reports, excluded: excluded, now: time.Now, log: GetLogger()}
}

// Run compares every job of every task. It needs the details file written
// by Check. Jobs whose annotations or frames cannot be read are reported
// with zero counts.
func (c *Comparer) Run(ctx context.Context) (*CompareResult, error) {
	details, err := LoadDetails(c.reports)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Newf("preannotation details missing, run the preannotation check first").
				Category(errors.CategoryNotFound).
				Component("preannotation").
				Context("path", c.reports.Path(DetailsFile)).
				Build()
		}
		return nil, err
	}
	c.log.Info("loaded preannotation details", logger.Int("chunks", len(details)))

	tasks, err := c.client.SelectTasks(ctx, nil, c.excluded)
	if err != nil {
		return nil, err
	}

	res := &CompareResult{}
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
		for j := range jobs {
			cmp, err := c.compareJob(ctx, task, &jobs[j], details)
			if err != nil {
				return nil, err
			}
			if cmp.Status == StatusPendingWithPre {
				c.log.Debug("job has preannotations but no human work",
					logger.Int("job_id", cmp.JobID),
					logger.Int("pre_annotated_frames", cmp.PreAnnotatedFrames))
			}
			res.Jobs = append(res.Jobs, cmp)
		}
	}

	records := make([][]string, len(res.Jobs))
	for i := range res.Jobs {
		records[i] = res.Jobs[i].Record()
	}
	name := "annotation_comparison_" + report.Timestamp(c.now()) + ".csv"
	if res.CSVPath, err = c.reports.WriteCSV(name, ComparisonHeader, records, report.CSVOptions{BOM: true}); err != nil {
		return res, err
	}
	if res.JSONPath, err = c.reports.WriteJSON(ComparisonFile, res.Jobs); err != nil {
		return res, err
	}
	counts := res.Counts()
	c.log.Info("comparison written",
		logger.Int("jobs", len(res.Jobs)),
		logger.Int(StatusAnnotated, counts[StatusAnnotated]),
		logger.Int(StatusPendingWithPre, counts[StatusPendingWithPre]),
		logger.Int(StatusPendingWithoutPre, counts[StatusPendingWithoutPre]),
		logger.String("path", res.CSVPath))
	return res, nil
}

// compareJob only fails on cancellation
func (c *Comparer) compareJob(ctx context.Context, task *cvat.Task, job *cvat.Job, details map[string]Chunk) (Comparison, error) {
	cmp := Comparison{
		JobID:      job.ID,
		TaskID:     task.ID,
		TaskName:   task.Name,
		Assignee:   Unassigned,
		FrameCount: job.FrameCount(),
	}
	if job.Assignee != nil && job.Assignee.Username != "" {
		cmp.Assignee = job.Assignee.Username
	}

	stats, err := c.client.JobAnnotationStats(ctx, job.ID)
	if err != nil {
		if ctx.Err() != nil {
			return cmp, ctx.Err()
		}
		c.log.Debug("could not read job annotations", logger.Int("job_id", job.ID), logger.Error(err))
	}
	cmp.HumanAnnotatedFrames = stats.ShapeFrames
	cmp.HumanShapes = stats.Shapes

	meta, err := c.client.JobDataMeta(ctx, job.ID)
	if err != nil {
		if ctx.Err() != nil {
			return cmp, ctx.Err()
		}
		c.log.Debug("could not read job frames", logger.Int("job_id", job.ID), logger.Error(err))
	} else if names := meta.FrameNames(); len(names) > 0 {
		cmp.ChunkID, _ = session.ChunkID(names[0])
	}

	if chunk, ok := details[cmp.ChunkID]; ok && cmp.ChunkID != "" {
		cmp.PreFrames = chunk.Frames
		cmp.PreAnnotatedFrames = chunk.AnnotatedFrames
		cmp.PreAnnotations = chunk.Annotations
	}
	cmp.Status = CompareStatus(cmp.HumanAnnotatedFrames, cmp.PreAnnotatedFrames)
	return cmp, nil
}
