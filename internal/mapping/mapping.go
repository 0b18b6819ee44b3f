// Package mapping builds the job file mapping sent to CVAT when attaching
// data, and the job/session table written after a task is created.
package mapping

import (
	"fmt"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// JobFiles is a job file mapping: one ordered file list per job, plus the
// flat deduplicated server file list and the session behind each job.
type JobFiles struct {
	ServerFiles []string
	Jobs        [][]string
	Sessions    []string
}

// FromCOCO builds a mapping from session groups of a HumanSignal export.
// Sessions are visited in lexical order. A file that appears in several
// sessions belongs to the first one only, and sessions left without files
// produce no job.
func FromCOCO(groups map[string]*coco.Group, prefix string) *JobFiles {
	ids := session.SortedIDs(groups)
	m := &JobFiles{}
	owner := make(map[string]string)

	for _, id := range ids {
		for _, img := range groups[id].Images {
			p := coco.ServerPath(prefix, img.FileName)
			if _, seen := owner[p]; seen {
				continue
			}
			owner[p] = id
			m.ServerFiles = append(m.ServerFiles, p)
		}
	}

	for _, id := range ids {
		var files []string
		inJob := make(map[string]struct{})
		for _, img := range groups[id].Images {
			p := coco.ServerPath(prefix, img.FileName)
			if owner[p] != id {
				continue
			}
			if _, dup := inJob[p]; dup {
				continue
			}
			inJob[p] = struct{}{}
			files = append(files, p)
		}
		if len(files) > 0 {
			m.Jobs = append(m.Jobs, files)
			m.Sessions = append(m.Sessions, id)
		}
	}
	return m
}

// FromFiles builds a mapping from bucket paths grouped by session; each
// session becomes one job in lexical session order.
func FromFiles(groups map[string][]string) *JobFiles {
	m := &JobFiles{}
	for _, id := range session.SortedIDs(groups) {
		files := groups[id]
		if len(files) == 0 {
			continue
		}
		m.Jobs = append(m.Jobs, files)
		m.Sessions = append(m.Sessions, id)
		m.ServerFiles = append(m.ServerFiles, files...)
	}
	return m
}

// References counts file entries across all jobs
func (m *JobFiles) References() int {
	n := 0
	for _, files := range m.Jobs {
		n += len(files)
	}
	return n
}

// Validate checks that every mapped file is also a server file, which CVAT
// requires. It returns the server files no job references.
func (m *JobFiles) Validate() (unmapped []string, err error) {
	server := make(map[string]struct{}, len(m.ServerFiles))
	for _, f := range m.ServerFiles {
		server[f] = struct{}{}
	}

	mapped := make(map[string]struct{}, len(m.ServerFiles))
	var missing []string
	for _, files := range m.Jobs {
		for _, f := range files {
			mapped[f] = struct{}{}
			if _, ok := server[f]; !ok {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		sample := missing
		if len(sample) > 10 {
			sample = sample[:10]
		}
		return nil, errors.Newf("%d mapped files are not in server_files", len(missing)).
			Category(errors.CategoryValidation).
			Component("mapping").
			Context("missing_sample", sample).
			Build()
	}

	for _, f := range m.ServerFiles {
		if _, ok := mapped[f]; !ok {
			unmapped = append(unmapped, f)
		}
	}
	return unmapped, nil
}

// Entry links a CVAT job to the session whose files it holds
type Entry struct {
	JobID      int    `json:"job_id"`
	SessionID  string `json:"session_id"`
	StartFrame int    `json:"start_frame"`
	StopFrame  int    `json:"stop_frame"`
	FrameCount int    `json:"frame_count"`
	ImageCount *int   `json:"image_count,omitempty"`
}

// JobSessions pairs jobs ordered by start frame with sessions in the given
// order. Surplus jobs or sessions are ignored. imageCounts is optional.
func JobSessions(jobs []cvat.Job, sessions []string, imageCounts map[string]int) []Entry {
	ordered := make([]cvat.Job, len(jobs))
	copy(ordered, jobs)
	cvat.SortJobsByStartFrame(ordered)

	n := min(len(ordered), len(sessions))
	entries := make([]Entry, 0, n)
	for i := range n {
		j := ordered[i]
		e := Entry{
			JobID:      j.ID,
			SessionID:  sessions[i],
			StartFrame: j.StartFrame,
			StopFrame:  j.StopFrame,
			FrameCount: j.FrameCount(),
		}
		if imageCounts != nil {
			count := imageCounts[sessions[i]]
			e.ImageCount = &count
		}
		entries = append(entries, e)
	}
	return entries
}

// SortedSessions returns session ids of COCO groups with their image counts
func SortedSessions(groups map[string]*coco.Group) ([]string, map[string]int) {
	ids := session.SortedIDs(groups)
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id] = len(groups[id].Images)
	}
	return ids, counts
}

// FileName is the name of the job/session table of a task
func FileName(taskID int) string {
	return fmt.Sprintf("job_session_mapping_%d.json", taskID)
}
