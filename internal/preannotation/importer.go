package preannotation

import (
	"context"
	"sort"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/store"
)

// ToShapes converts the boxes of d on mapped images to CVAT rectangles.
// Categories without a matching task label are returned in missing.
func ToShapes(d *coco.Dataset, frames map[int]int, labelIDs map[string]int) (shapes []cvat.Shape, missing []string) {
	categories := make(map[int]string, len(d.Categories))
	for _, c := range d.Categories {
		categories[c.ID] = c.Name
	}
	seen := make(map[string]bool)
	for _, a := range d.Annotations {
		name, ok := categories[a.CategoryID]
		if !ok || len(a.Bbox) < 4 {
			continue
		}
		label := CVATLabel(name)
		labelID, ok := labelIDs[label]
		if !ok {
			if !seen[label] {
				seen[label] = true
				missing = append(missing, label)
			}
			continue
		}
		frame, ok := frames[a.ImageID]
		if !ok {
			continue
		}
		x, y, w, h := a.Bbox[0], a.Bbox[1], a.Bbox[2], a.Bbox[3]
		shapes = append(shapes, cvat.Shape{
			Type:       "rectangle",
			Frame:      frame,
			LabelID:    labelID,
			Points:     []float64{x, y, x + w, y + h},
			Attributes: []cvat.Attribute{},
		})
	}
	sort.Strings(missing)
	return shapes, missing
}

// ImportResult counts the outcome per job
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
	Records  []store.Record
}

// Importer loads preannotations into CVAT jobs
type Importer struct {
	client  *cvat.Client
	bucket  cloudstore.Store
	records store.Interface
	metrics *metrics.Metrics
	now     func() time.Time
	log     logger.Logger
}

// NewImporter returns an importer. records may be nil to skip bookkeeping.
func NewImporter(client *cvat.Client, bucket cloudstore.Store, records store.Interface, m *metrics.Metrics) *Importer {
	return &Importer{
		client:  client,
		bucket:  bucket,
		records: records,
		metrics: m,
		now:     time.Now,
		log:     GetLogger(),
	}
}

// Run imports preannotations into every job of taskID that has no human
// shapes yet, or only into jobID when it is non-zero.
func (im *Importer) Run(ctx context.Context, taskID, jobID int) (*ImportResult, error) {
	task, err := im.client.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	labelIDs, err := im.client.LabelIDs(ctx, taskID)
	if err != nil {
		return nil, err
	}
	jobs, err := im.client.ListJobsByStartFrame(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if jobID != 0 {
		var picked []cvat.Job
		for _, j := range jobs {
			if j.ID == jobID {
				picked = append(picked, j)
			}
		}
		if len(picked) == 0 {
			return nil, errors.Newf("job %d not found in task %d", jobID, taskID).
				Category(errors.CategoryNotFound).
				Component("preannotation").
				Context("job_id", jobID).
				Context("task_id", taskID).
				Build()
		}
		jobs = picked
	}
	im.log.Info("importing preannotations",
		logger.Int("task_id", task.ID),
		logger.String("task_name", task.Name),
		logger.Int("jobs", len(jobs)),
		logger.Int("labels", len(labelIDs)))

	res := &ImportResult{}
	for i := range jobs {
		outcome, rec, err := im.importJob(ctx, &jobs[i], labelIDs)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			im.log.Error("preannotation import failed", logger.Int("job_id", jobs[i].ID), logger.Error(err))
		}
		switch outcome {
		case outcomeImported:
			res.Imported++
		case outcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
		im.metrics.RecordItem("preannotation", string(outcome))
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
	}

	if im.records != nil && len(res.Records) > 0 {
		if err := im.records.AddRecords(ctx, res.Records); err != nil {
			return res, err
		}
	}
	im.log.Info("preannotation import finished",
		logger.Int("imported", res.Imported),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed))
	return res, nil
}

type outcome string

const (
	outcomeImported outcome = "imported"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
)

// importJob returns a record for every attempted upload
func (im *Importer) importJob(ctx context.Context, job *cvat.Job, labelIDs map[string]int) (outcome, *store.Record, error) {
	log := im.log.With(logger.Int("job_id", job.ID))

	stats, err := im.client.JobAnnotationStats(ctx, job.ID)
	switch {
	case err != nil && ctx.Err() != nil:
		return outcomeFailed, nil, ctx.Err()
	case err != nil:
		log.Warn("could not read job annotations, importing anyway", logger.Error(err))
	case stats.ShapeFrames > 0:
		log.Info("job already annotated, skipping", logger.Int("annotated_frames", stats.ShapeFrames))
		return outcomeSkipped, nil, nil
	}

	meta, err := im.client.JobDataMeta(ctx, job.ID)
	if err != nil {
		return outcomeFailed, nil, err
	}
	frames := meta.FrameNames()
	if len(frames) == 0 {
		return outcomeFailed, nil, errors.Newf("job has no frames").
			Category(errors.CategoryNotFound).
			Component("preannotation").
			Build()
	}
	prefix, ok := session.LabelsPrefix(frames[0])
	if !ok {
		return outcomeFailed, nil, errors.Newf("no labels directory in frame path %q", frames[0]).
			Category(errors.CategoryValidation).
			Component("preannotation").
			Build()
	}
	key, found, err := findBBoxFile(ctx, im.bucket, prefix)
	if err != nil {
		return outcomeFailed, nil, err
	}
	if !found {
		return outcomeFailed, nil, errors.Newf("no preannotation file below %s", prefix).
			Category(errors.CategoryNotFound).
			Component("preannotation").
			Build()
	}
	d, err := fetchDataset(ctx, im.bucket, key)
	if err != nil {
		return outcomeFailed, nil, err
	}

	mapping := FrameMapping(meta.Frames, job.StartFrame, d)
	log.Debug("frame mapping", logger.String("bbox_file", key), logger.Int("mapped", len(mapping)), logger.Int("frames", len(frames)))
	if len(mapping) == 0 {
		return outcomeFailed, nil, errors.Newf("no job frame matches an image of %s", key).
			Category(errors.CategoryValidation).
			Component("preannotation").
			Build()
	}
	shapes, missing := ToShapes(d, mapping, labelIDs)
	for _, l := range missing {
		log.Warn("label not found in task", logger.String("label", l))
	}
	if len(shapes) == 0 {
		log.Info("preannotation is empty, skipping", logger.String("bbox_file", key))
		return outcomeSkipped, nil, nil
	}

	rec := &store.Record{
		JobID:      job.ID,
		ChunkID:    ChunkOf(key),
		BBoxFile:   key,
		Shapes:     len(shapes),
		ImportedAt: im.now(),
		Status:     store.RecordSuccess,
	}
	ann := &cvat.Annotations{Shapes: shapes, Tracks: []cvat.Track{}, Tags: []cvat.Tag{}}
	if err := im.client.CreateJobAnnotations(ctx, job.ID, ann); err != nil {
		rec.Status = store.RecordFailed
		return outcomeFailed, rec, err
	}
	log.Info("preannotations imported", logger.String("bbox_file", key), logger.Int("shapes", len(shapes)))
	return outcomeImported, rec, nil
}
