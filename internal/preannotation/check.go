package preannotation

import (
	"context"
	"strconv"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
)

// SummaryHeader is the column order of the summary CSV
var SummaryHeader = []string{"chunk_id", "bbox_file", "frames", "annotated_frames", "annotations"}

// CheckResult is the outcome of a bucket scan
type CheckResult struct {
	Scanned     int
	Chunks      []Chunk
	Failed      int
	SummaryPath string
	DetailsPath string
}

// Totals sums frames, annotated frames and boxes over every chunk
func (r *CheckResult) Totals() (frames, annotated, annotations int) {
	for i := range r.Chunks {
		frames += r.Chunks[i].Frames
		annotated += r.Chunks[i].AnnotatedFrames
		annotations += r.Chunks[i].Annotations
	}
	return frames, annotated, annotations
}

// Check scans every preannotation file below prefix and writes the summary
// CSV and the per chunk details to reports. Files that cannot be read are
// logged and left out.
func Check(ctx context.Context, st cloudstore.Store, prefix string, reports *report.Writer) (*CheckResult, error) {
	log := GetLogger()
	objects, err := st.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{Scanned: len(objects)}
	var keys []string
	for _, o := range objects {
		if IsBBoxFile(o.Key) {
			keys = append(keys, o.Key)
		}
	}
	log.Info("scanned bucket",
		logger.String("bucket", st.Name()),
		logger.Int("objects", len(objects)),
		logger.Int("bbox_files", len(keys)))
	if len(keys) == 0 {
		return res, nil
	}

	details := make(map[string]Chunk, len(keys))
	rows := make([][]string, 0, len(keys))
	for i, key := range keys {
		d, err := fetchDataset(ctx, st, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("failed to read preannotation file", logger.String("key", key), logger.Error(err))
			res.Failed++
			continue
		}
		c := Summarize(key, d)
		res.Chunks = append(res.Chunks, c)
		details[c.ChunkID] = c
		rows = append(rows, []string{
			c.ChunkID,
			c.BBoxFile,
			strconv.Itoa(c.Frames),
			strconv.Itoa(c.AnnotatedFrames),
			strconv.Itoa(c.Annotations),
		})
		if (i+1)%10 == 0 {
			log.Debug("reading preannotation files", logger.Int("done", i+1), logger.Int("total", len(keys)))
		}
	}

	if res.SummaryPath, err = reports.WriteCSV(SummaryFile, SummaryHeader, rows, report.CSVOptions{}); err != nil {
		return res, err
	}
	if res.DetailsPath, err = reports.WriteJSON(DetailsFile, details); err != nil {
		return res, err
	}
	frames, annotated, annotations := res.Totals()
	log.Info("preannotation summary written",
		logger.Int("chunks", len(res.Chunks)),
		logger.Int("frames", frames),
		logger.Int("annotated_frames", annotated),
		logger.Int("annotations", annotations),
		logger.String("path", res.SummaryPath))
	return res, nil
}

// LoadDetails reads the per chunk details written by Check
func LoadDetails(reports *report.Writer) (map[string]Chunk, error) {
	var details map[string]Chunk
	if err := reports.ReadJSON(DetailsFile, &details); err != nil {
		return nil, err
	}
	return details, nil
}
