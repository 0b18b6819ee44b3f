// Package preannotation handles the machine generated boxes that sit next to
// each chunk in cloud storage as <name>_bbox.json COCO files: it summarises
// them, imports them into empty CVAT jobs and compares them with the human
// annotations.
package preannotation

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// BBoxSuffix ends the key of every preannotation file
const BBoxSuffix = "_bbox.json"

// Report file names
const (
	SummaryFile = "preannotation_summary.csv"
	DetailsFile = "preannotation_details.json"
)

// LabelMap translates detector category names to CVAT label names
var LabelMap = map[string]string{
	"left_hand":          "Left hand",
	"right_hand":         "Right hand",
	"partial_left_hand":  "Partial left hand",
	"partial_right_hand": "Partial right hand",
}

// CVATLabel maps a detector category to its CVAT label, passing unknown
// names through
func CVATLabel(category string) string {
	if l, ok := LabelMap[category]; ok {
		return l
	}
	return category
}

// IsBBoxFile reports whether key is a preannotation file
func IsBBoxFile(key string) bool {
	return strings.HasSuffix(key, BBoxSuffix)
}

// ChunkOf returns the chunk id of a bucket key, or the key itself when it
// has no session directory
func ChunkOf(key string) string {
	if id, ok := session.ChunkID(key); ok {
		return id
	}
	return key
}

// FrameDetail counts the boxes of one image
type FrameDetail struct {
	ImageID         int    `json:"image_id"`
	FileName        string `json:"file_name"`
	AnnotationCount int    `json:"annotation_count"`
}

// Chunk summarises one preannotation file
type Chunk struct {
	ChunkID         string        `json:"chunk_id"`
	BBoxFile        string        `json:"bbox_file"`
	Frames          int           `json:"frames"`
	AnnotatedFrames int           `json:"annotated_frames"`
	Annotations     int           `json:"annotations"`
	FramesDetail    []FrameDetail `json:"frames_detail"`
}

// Summarize counts the frames and boxes of a preannotation dataset
func Summarize(key string, d *coco.Dataset) Chunk {
	names := make(map[int]string, len(d.Images))
	for _, img := range d.Images {
		names[img.ID] = img.FileName
	}
	perImage := make(map[int]int)
	for _, a := range d.Annotations {
		perImage[a.ImageID]++
	}
	ids := make([]int, 0, len(perImage))
	for id := range perImage {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	c := Chunk{
		ChunkID:         ChunkOf(key),
		BBoxFile:        key,
		Frames:          len(d.Images),
		AnnotatedFrames: len(perImage),
		Annotations:     len(d.Annotations),
		FramesDetail:    make([]FrameDetail, 0, len(ids)),
	}
	for _, id := range ids {
		c.FramesDetail = append(c.FramesDetail, FrameDetail{
			ImageID:         id,
			FileName:        names[id],
			AnnotationCount: perImage[id],
		})
	}
	return c
}

func fetchDataset(ctx context.Context, st cloudstore.Store, key string) (*coco.Dataset, error) {
	data, err := st.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return coco.Decode(bytes.NewReader(data))
}

// findBBoxFile returns the first preannotation file below prefix
func findBBoxFile(ctx context.Context, st cloudstore.Store, prefix string) (string, bool, error) {
	objects, err := st.List(ctx, prefix)
	if err != nil {
		return "", false, err
	}
	for _, o := range objects {
		if IsBBoxFile(o.Key) {
			return o.Key, true, nil
		}
	}
	return "", false, nil
}

// FrameMapping maps COCO image ids to absolute CVAT frame numbers. Frame i of
// a job is start+i, counting frames without a name; images match by full
// name first, then by basename.
func FrameMapping(frames []cvat.Frame, start int, d *coco.Dataset) map[int]int {
	byName := make(map[string]int, len(d.Images))
	byBase := make(map[string]int, len(d.Images))
	for _, img := range d.Images {
		byName[img.FileName] = img.ID
		byBase[path.Base(img.FileName)] = img.ID
	}
	out := make(map[int]int)
	for i := range frames {
		name := frames[i].Name
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			id, ok = byBase[path.Base(name)]
		}
		if ok {
			out[id] = start + i
		}
	}
	return out
}
