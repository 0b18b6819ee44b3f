package cvat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// taskPageSize matches the largest page the task list endpoint accepts
const taskPageSize = 500

// ListTasks returns every task of the organization
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	q := c.orgQuery()
	q.Set("page_size", strconv.Itoa(taskPageSize))
	return listAll[Task](ctx, c, "/api/tasks", q)
}

// GetTask fetches one task
func (c *Client) GetTask(ctx context.Context, taskID int) (*Task, error) {
	var task Task
	r := &request{method: http.MethodGet, path: fmt.Sprintf("/api/tasks/%d", taskID)}
	if err := c.do(ctx, r, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SelectTasks returns the tasks with the given ids, or every task of the
// organization when ids is empty, leaving out excluded ones. A task that
// cannot be fetched is logged and skipped.
func (c *Client) SelectTasks(ctx context.Context, ids, excluded []int) ([]Task, error) {
	var tasks []Task
	if len(ids) > 0 {
		for _, id := range ids {
			t, err := c.GetTask(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.log.Error("failed to get task", logger.Int("task_id", id), logger.Error(err))
				continue
			}
			tasks = append(tasks, *t)
		}
	} else {
		var err error
		if tasks, err = c.ListTasks(ctx); err != nil {
			return nil, err
		}
	}

	kept := tasks[:0]
	for _, t := range tasks {
		if slices.Contains(excluded, t.ID) {
			c.log.Debug("skipping excluded task", logger.Int("task_id", t.ID))
			continue
		}
		kept = append(kept, t)
	}
	return kept, nil
}

// CreateTask creates a task with the given labels in the organization
func (c *Client) CreateTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	r, err := jsonRequest(http.MethodPost, "/api/tasks", c.orgQuery(), spec)
	if err != nil {
		return nil, err
	}
	var task Task
	if err := c.do(ctx, r, &task); err != nil {
		return nil, err
	}
	c.log.Info("task created",
		logger.Int("task_id", task.ID),
		logger.String("name", task.Name),
		logger.Int("labels", len(spec.Labels)))
	return &task, nil
}

// AttachData queues loading of cloud storage files into a task
func (c *Client) AttachData(ctx context.Context, taskID int, data DataRequest) (*RequestID, error) {
	r, err := jsonRequest(http.MethodPost, fmt.Sprintf("/api/tasks/%d/data", taskID), nil, data)
	if err != nil {
		return nil, err
	}
	var rq RequestID
	if err := c.do(ctx, r, &rq); err != nil {
		return nil, err
	}
	return &rq, nil
}

// TaskDataMeta returns frame metadata of a task
func (c *Client) TaskDataMeta(ctx context.Context, taskID int) (*DataMeta, error) {
	return c.dataMeta(ctx, fmt.Sprintf("/api/tasks/%d/data/meta", taskID))
}

// JobDataMeta returns frame metadata of a job
func (c *Client) JobDataMeta(ctx context.Context, jobID int) (*DataMeta, error) {
	return c.dataMeta(ctx, fmt.Sprintf("/api/jobs/%d/data/meta", jobID))
}

func (c *Client) dataMeta(ctx context.Context, path string) (*DataMeta, error) {
	var meta DataMeta
	if err := c.do(ctx, &request{method: http.MethodGet, path: path}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListLabels returns the labels of a task. Results are cached.
func (c *Client) ListLabels(ctx context.Context, taskID int) ([]Label, error) {
	cacheKey := fmt.Sprintf("labels:%d", taskID)
	if cached, found := c.cache.Get(cacheKey); found {
		if labels, ok := cached.([]Label); ok {
			return labels, nil
		}
	}

	q := url.Values{}
	q.Set("task_id", strconv.Itoa(taskID))
	q.Set("page_size", "100")
	labels, err := listAll[Label](ctx, c, "/api/labels", q)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, labels, cache.DefaultExpiration)
	return labels, nil
}

// LabelIDs maps label names of a task to their ids
func (c *Client) LabelIDs(ctx context.Context, taskID int) (map[string]int, error) {
	labels, err := c.ListLabels(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int, len(labels))
	for _, l := range labels {
		ids[l.Name] = l.ID
	}
	return ids, nil
}

// ListRequests returns background requests targeting a task
func (c *Client) ListRequests(ctx context.Context, taskID int) ([]Request, error) {
	q := url.Values{}
	q.Set("target", fmt.Sprintf("task/%d", taskID))
	q.Set("page_size", "100")
	var page Page[Request]
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/api/requests", query: q}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}
