// Package cvat provides a client for the CVAT REST API (v2).
//
// Only the endpoints the cvat-tools subcommands need are wrapped: tasks,
// jobs, annotations, labels, memberships, users and background requests.
package cvat

import (
	"strings"
	"time"
)

// Job states as reported by CVAT
const (
	JobStateNew        = "new"
	JobStateInProgress = "in progress"
	JobStateCompleted  = "completed"
	JobStateRejected   = "rejected"
)

// Task statuses
const (
	TaskStatusAnnotation = "annotation"
	TaskStatusValidation = "validation"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Request statuses of background operations
const (
	RequestQueued   = "queued"
	RequestStarted  = "started"
	RequestFailed   = "failed"
	RequestFinished = "finished"
)

// FormatCOCO is the import format name of COCO 1.0 archives
const FormatCOCO = "COCO 1.0"

// Page is one page of a paginated list response
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

// User is a CVAT user as embedded in jobs and memberships
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// DisplayName returns "first last" or the username when both are empty
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Task is a CVAT task
type Task struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Size         int       `json:"size"`
	Mode         string    `json:"mode"`
	Organization int       `json:"organization"`
	Assignee     *User     `json:"assignee"`
	CreatedDate  time.Time `json:"created_date"`
	UpdatedDate  time.Time `json:"updated_date"`
}

// Job is a frame range of a task that can be assigned to one annotator
type Job struct {
	ID                  int        `json:"id"`
	TaskID              int        `json:"task_id"`
	StartFrame          int        `json:"start_frame"`
	StopFrame           int        `json:"stop_frame"`
	State               string     `json:"state"`
	Stage               string     `json:"stage"`
	Type                string     `json:"type"`
	Assignee            *User      `json:"assignee"`
	AssigneeUpdatedDate *time.Time `json:"assignee_updated_date"`
	CreatedDate         time.Time  `json:"created_date"`
	UpdatedDate         time.Time  `json:"updated_date"`
}

// FrameCount returns the number of frames in the job's inclusive range
func (j *Job) FrameCount() int {
	return j.StopFrame - j.StartFrame + 1
}

// AssigneeID returns the assignee's user id, or 0 when unassigned
func (j *Job) AssigneeID() int {
	if j.Assignee == nil {
		return 0
	}
	return j.Assignee.ID
}

// WorkStart is when the current assignee got the job, falling back to the
// job creation time.
func (j *Job) WorkStart() time.Time {
	if j.AssigneeUpdatedDate != nil && !j.AssigneeUpdatedDate.IsZero() {
		return *j.AssigneeUpdatedDate
	}
	return j.CreatedDate
}

// Membership links a user to an organization with a role
type Membership struct {
	ID       int    `json:"id"`
	User     User   `json:"user"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// IsAdmin reports whether the role manages the organization
func (m *Membership) IsAdmin() bool {
	return m.Role == "owner" || m.Role == "maintainer"
}

// Label is a task label
type Label struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Type   string `json:"type,omitempty"`
	TaskID int    `json:"task_id,omitempty"`
}

// LabelSpec defines a label when creating a task
type LabelSpec struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// TaskSpec is the body of a task creation request
type TaskSpec struct {
	Name   string      `json:"name"`
	Labels []LabelSpec `json:"labels"`
}

// DataRequest attaches cloud storage files to a task
type DataRequest struct {
	CloudStorageID int        `json:"cloud_storage_id"`
	ServerFiles    []string   `json:"server_files"`
	UseCache       bool       `json:"use_cache"`
	ImageQuality   int        `json:"image_quality"`
	StorageMethod  string     `json:"storage_method"`
	SortingMethod  string     `json:"sorting_method,omitempty"`
	JobFileMapping [][]string `json:"job_file_mapping,omitempty"`
}

// NewDataRequest returns a cached cloud storage data request. Without a job
// file mapping, files are sorted naturally and CVAT decides job boundaries.
func NewDataRequest(cloudStorageID int, files []string, mapping [][]string, quality int) DataRequest {
	req := DataRequest{
		CloudStorageID: cloudStorageID,
		ServerFiles:    files,
		UseCache:       true,
		ImageQuality:   quality,
		StorageMethod:  "cache",
	}
	if len(mapping) > 0 {
		req.JobFileMapping = mapping
	} else {
		req.SortingMethod = "natural"
	}
	return req
}

// Frame describes one image of a task or job
type Frame struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DataMeta is the response of the data/meta endpoints
type DataMeta struct {
	StartFrame int     `json:"start_frame"`
	StopFrame  int     `json:"stop_frame"`
	Size       int     `json:"size"`
	Frames     []Frame `json:"frames"`
}

// FrameNames returns the non-empty frame names in order
func (m *DataMeta) FrameNames() []string {
	names := make([]string, 0, len(m.Frames))
	for _, f := range m.Frames {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}

// Attribute is an attribute value attached to a shape
type Attribute struct {
	SpecID int    `json:"spec_id"`
	Value  string `json:"value"`
}

// Shape is a single-frame annotation
type Shape struct {
	ID         int         `json:"id,omitempty"`
	Type       string      `json:"type"`
	Frame      int         `json:"frame"`
	LabelID    int         `json:"label_id"`
	Points     []float64   `json:"points"`
	Occluded   bool        `json:"occluded"`
	ZOrder     int         `json:"z_order"`
	Source     string      `json:"source,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// TrackShape is one keyframe of a track
type TrackShape struct {
	Type     string    `json:"type"`
	Frame    int       `json:"frame"`
	Points   []float64 `json:"points"`
	Outside  bool      `json:"outside"`
	Occluded bool      `json:"occluded"`
}

// Track is an object followed across frames
type Track struct {
	ID      int          `json:"id,omitempty"`
	Frame   int          `json:"frame"`
	LabelID int          `json:"label_id"`
	Shapes  []TrackShape `json:"shapes"`
}

// Tag is a frame-level label
type Tag struct {
	Frame   int `json:"frame"`
	LabelID int `json:"label_id"`
}

// Annotations is the annotation payload of a job
type Annotations struct {
	Version int     `json:"version"`
	Tags    []Tag   `json:"tags"`
	Shapes  []Shape `json:"shapes"`
	Tracks  []Track `json:"tracks"`
}

// AnnotationStats summarises a job's annotations
type AnnotationStats struct {
	Shapes int
	Tracks int
	// AnnotatedFrames counts distinct frames across shapes and track keyframes
	AnnotatedFrames int
	// ShapeFrames counts distinct frames that carry at least one shape
	ShapeFrames int
}

// Stats computes counts for progress and comparison reports
func (a *Annotations) Stats() AnnotationStats {
	all := make(map[int]struct{})
	shapeFrames := make(map[int]struct{})
	for i := range a.Shapes {
		all[a.Shapes[i].Frame] = struct{}{}
		shapeFrames[a.Shapes[i].Frame] = struct{}{}
	}
	for i := range a.Tracks {
		for _, s := range a.Tracks[i].Shapes {
			all[s.Frame] = struct{}{}
		}
	}
	return AnnotationStats{
		Shapes:          len(a.Shapes),
		Tracks:          len(a.Tracks),
		AnnotatedFrames: len(all),
		ShapeFrames:     len(shapeFrames),
	}
}

// IsEmpty reports whether the job has neither shapes nor tracks
func (a *Annotations) IsEmpty() bool {
	return len(a.Shapes) == 0 && len(a.Tracks) == 0
}

// Operation describes what a background request does
type Operation struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	TaskID int    `json:"task_id"`
	JobID  int    `json:"job_id"`
	Format string `json:"format"`
}

// Request is a background operation such as data creation or an import
type Request struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Message      string     `json:"message"`
	Progress     float64    `json:"progress"`
	Operation    Operation  `json:"operation"`
	CreatedDate  time.Time  `json:"created_date"`
	FinishedDate *time.Time `json:"finished_date"`
}

// RequestID is returned by endpoints that queue background work
type RequestID struct {
	RQID string `json:"rq_id"`
}
