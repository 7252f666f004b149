// Package client talks to the controller's task store API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/export"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/seed"
)

// APIError carries a non-2xx response from the controller.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the controller.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a thin JSON client for one controller.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New returns a client for base (e.g. http://127.0.0.1:8080). A nil hc
// uses http.DefaultClient.
func New(base, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), token: token, http: hc}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))})
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func projectPath(root, view string) string {
	return "/api/v1/projects/" + url.PathEscape(root) + "/" + view
}

// SearchTasks lists tasks matching f in WBS order.
func (c *Client) SearchTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	q := url.Values{}
	if f.WBS != "" {
		q.Set("wbs", f.WBS)
	}
	if f.Root != "" {
		q.Set("root", f.Root)
	}
	if len(f.IDs) > 0 {
		ids := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		q.Set("ids", strings.Join(ids, ","))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/api/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Task
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// GetTask fetches one task; ok is false on 404.
func (c *Client) GetTask(ctx context.Context, id int64) (model.Task, bool, error) {
	var t model.Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+strconv.FormatInt(id, 10), nil, &t)
	if IsNotFound(err) {
		return model.Task{}, false, nil
	}
	return t, err == nil, err
}

// ProjectTasks returns the drawable tasks of one project.
func (c *Client) ProjectTasks(ctx context.Context, root string) ([]model.Task, error) {
	var out []model.Task
	return out, c.do(ctx, http.MethodGet, projectPath(root, "tasks"), nil, &out)
}

func (c *Client) Projects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	return out, c.do(ctx, http.MethodGet, "/api/v1/projects", nil, &out)
}

func (c *Client) Gantt(ctx context.Context, root string) (model.Timeline, error) {
	var out model.Timeline
	return out, c.do(ctx, http.MethodGet, projectPath(root, "gantt"), nil, &out)
}

func (c *Client) Details(ctx context.Context, root string) (model.ProjectDetails, error) {
	var out model.ProjectDetails
	return out, c.do(ctx, http.MethodGet, projectPath(root, "details"), nil, &out)
}

func (c *Client) NextWBS(ctx context.Context, root string) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, projectPath(root, "next-wbs"), nil, &out); err != nil {
		return "", err
	}
	return out["wbs"], nil
}

func (c *Client) CreateTask(ctx context.Context, req api.CreateTaskRequest) (model.Task, error) {
	var out model.Task
	return out, c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &out)
}

// WriteTask sends the update as a field map and returns the stored task.
func (c *Client) WriteTask(ctx context.Context, id int64, u model.TaskUpdate) (model.Task, error) {
	var out model.Task
	return out, c.do(ctx, http.MethodPatch, "/api/v1/tasks/"+strconv.FormatInt(id, 10), u.FieldMap(), &out)
}

func (c *Client) UnlinkTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) Sample(ctx context.Context) (seed.Result, error) {
	var out seed.Result
	return out, c.do(ctx, http.MethodPost, "/api/v1/tasks/sample", nil, &out)
}

// SearchUsers lists directory entries whose name contains name.
func (c *Client) SearchUsers(ctx context.Context, name string) ([]model.UserRef, error) {
	var out []model.UserRef
	return out, c.do(ctx, http.MethodGet, "/api/v1/users?name="+url.QueryEscape(name), nil, &out)
}

// UserIDs resolves an exact display name to ids.
func (c *Client) UserIDs(ctx context.Context, name string) ([]int64, error) {
	var out []int64
	return out, c.do(ctx, http.MethodGet, "/api/v1/users/search?name="+url.QueryEscape(name), nil, &out)
}

func (c *Client) Audit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	return out, c.do(ctx, http.MethodGet, "/api/v1/audit?limit="+strconv.Itoa(limit), nil, &out)
}

// Login exchanges credentials for a JWT.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out map[string]string
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &out); err != nil {
		return "", err
	}
	return out["token"], nil
}

// Export streams the project workbook into w and returns its summary.
func (c *Client) Export(ctx context.Context, root string, w io.Writer) (export.Summary, error) {
	req, err := c.newRequest(ctx, http.MethodGet, projectPath(root, "export.xlsx"), nil)
	if err != nil {
		return export.Summary{}, err
	}
	resp, err := c.send(req)
	if err != nil {
		return export.Summary{}, err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return export.Summary{}, fmt.Errorf("download export: %w", err)
	}
	days, _ := strconv.Atoi(resp.Header.Get(api.HeaderExportDays))
	tasks, _ := strconv.Atoi(resp.Header.Get(api.HeaderExportTasks))
	return export.Summary{
		Root:     root,
		FileName: export.FileName(root),
		Start:    resp.Header.Get(api.HeaderExportStart),
		End:      resp.Header.Get(api.HeaderExportEnd),
		Days:     days,
		Tasks:    tasks,
	}, nil
}
