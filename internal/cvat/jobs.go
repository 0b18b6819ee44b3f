package cvat

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

const jobPageSize = 1000

// ListJobs returns the jobs of a task
func (c *Client) ListJobs(ctx context.Context, taskID int) ([]Job, error) {
	q := url.Values{}
	q.Set("task_id", strconv.Itoa(taskID))
	q.Set("page_size", strconv.Itoa(jobPageSize))
	return listAll[Job](ctx, c, "/api/jobs", q)
}

// ListJobsByStartFrame returns the jobs of a task in frame order
func (c *Client) ListJobsByStartFrame(ctx context.Context, taskID int) ([]Job, error) {
	jobs, err := c.ListJobs(ctx, taskID)
	if err != nil {
		return nil, err
	}
	SortJobsByStartFrame(jobs)
	return jobs, nil
}

// SortJobsByStartFrame orders jobs by their first frame, then id
func SortJobsByStartFrame(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].StartFrame != jobs[j].StartFrame {
			return jobs[i].StartFrame < jobs[j].StartFrame
		}
		return jobs[i].ID < jobs[j].ID
	})
}

// AssignJob sets the assignee of a job
func (c *Client) AssignJob(ctx context.Context, jobID, userID int) (*Job, error) {
	r, err := jsonRequest(http.MethodPatch, fmt.Sprintf("/api/jobs/%d", jobID), nil, map[string]int{"assignee": userID})
	if err != nil {
		return nil, err
	}
	var job Job
	if err := c.do(ctx, r, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobAnnotations fetches all annotations of a job
func (c *Client) GetJobAnnotations(ctx context.Context, jobID int) (*Annotations, error) {
	var ann Annotations
	r := &request{method: http.MethodGet, path: fmt.Sprintf("/api/jobs/%d/annotations", jobID)}
	if err := c.do(ctx, r, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

// HasAnnotations reports whether a job has any shape or track
func (c *Client) HasAnnotations(ctx context.Context, jobID int) (bool, error) {
	ann, err := c.GetJobAnnotations(ctx, jobID)
	if err != nil {
		return false, err
	}
	return !ann.IsEmpty(), nil
}

// JobAnnotationStats returns annotation counts of a job
func (c *Client) JobAnnotationStats(ctx context.Context, jobID int) (AnnotationStats, error) {
	ann, err := c.GetJobAnnotations(ctx, jobID)
	if err != nil {
		return AnnotationStats{}, err
	}
	return ann.Stats(), nil
}

// CreateJobAnnotations adds shapes to a job without touching existing ones
func (c *Client) CreateJobAnnotations(ctx context.Context, jobID int, ann *Annotations) error {
	q := url.Values{}
	q.Set("action", "create")
	r, err := jsonRequest(http.MethodPatch, fmt.Sprintf("/api/jobs/%d/annotations", jobID), q, ann)
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

// UploadAnnotations uploads a dataset archive to a task. The import runs in
// the background; poll ListRequests for its outcome.
func (c *Client) UploadAnnotations(ctx context.Context, taskID int, format string, archive []byte) (*RequestID, error) {
	if format == "" {
		format = FormatCOCO
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("annotation_file", "annotations.zip")
	if err == nil {
		_, err = part.Write(archive)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return nil, errors.Newf("failed to build multipart body: %w", err).
			Category(errors.CategoryProcessing).
			Component(componentName).
			Context("task_id", taskID).
			Build()
	}

	q := url.Values{}
	q.Set("format", format)
	r := &request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/api/tasks/%d/annotations", taskID),
		query:       q,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}
	var rq RequestID
	if err := c.do(ctx, r, &rq); err != nil {
		return nil, err
	}
	return &rq, nil
}
