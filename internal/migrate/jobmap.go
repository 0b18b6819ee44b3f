package migrate

import (
	"context"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/mapping"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// DefaultMappingTask is the task job-mapping uses when none is given
const DefaultMappingTask = 1966256

// JobMapping rebuilds the job/session table of an existing task from the
// dataset it was created from and writes it to logs.
func JobMapping(ctx context.Context, client *cvat.Client, logs *report.Writer, taskID int, d *coco.Dataset) ([]mapping.Entry, string, error) {
	log := GetLogger()
	sessions, counts := mapping.SortedSessions(coco.GroupBySession(d, session.LegacyParts))
	jobs, err := client.ListJobsByStartFrame(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	if len(jobs) != len(sessions) {
		log.Warn("job and session counts differ, extra entries are dropped",
			logger.Int("task_id", taskID),
			logger.Int("jobs", len(jobs)),
			logger.Int("sessions", len(sessions)))
	}

	entries := mapping.JobSessions(jobs, sessions, counts)
	path, err := logs.WriteJSON(mapping.FileName(taskID), entries)
	if err != nil {
		return entries, "", err
	}
	log.Info("job mapping written",
		logger.Int("task_id", taskID),
		logger.Int("entries", len(entries)),
		logger.String("path", path))
	return entries, path, nil
}
