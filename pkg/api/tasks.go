package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/seed"
	"wbs-gantt/pkg/wbs"
)

func (s *Server) registerTaskRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/tasks", s.guard(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.searchTasks(w, r)
		case http.MethodPost:
			s.createTask(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/v1/tasks/sample", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := seed.Apply(s.st, seed.Sample())
		if err != nil {
			storeError(w, err)
			return
		}
		s.audit(r, "sample", "tasks", fmt.Sprintf("created %d sample tasks", res.Tasks))
		if res.Tasks > 0 {
			s.NotifyChanged("")
		}
		writeJSON(w, http.StatusOK, res)
	}))

	mux.HandleFunc("/api/v1/tasks/{id}", s.guard(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid task id", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			t, ok, err := s.st.GetTask(id)
			if err != nil {
				storeError(w, err)
				return
			}
			if !ok {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, t)
		case http.MethodPatch, http.MethodPut:
			s.writeTask(w, r, id)
		case http.MethodDelete:
			s.unlinkTask(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
}

func taskFilter(r *http.Request) (model.TaskFilter, error) {
	q := r.URL.Query()
	f := model.TaskFilter{WBS: q.Get("wbs"), Root: q.Get("root"), Limit: queryInt(r, "limit", 0)}
	if ids := q.Get("ids"); ids != "" {
		for _, part := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return f, fmt.Errorf("invalid id %q", part)
			}
			f.IDs = append(f.IDs, id)
		}
	}
	return f, nil
}

// searchTasks serves search_read; ?fields= projects each record and
// ?waitVersion= long-polls until the store changes.
func (s *Server) searchTasks(w http.ResponseWriter, r *http.Request) {
	if waitStr := r.URL.Query().Get("waitVersion"); waitStr != "" {
		s.waitForVersion(waitStr)
	}
	f, err := taskFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tasks, err := s.st.SearchTasks(f)
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("X-Store-Version", strconv.FormatInt(s.Version(), 10))
	fields := r.URL.Query().Get("fields")
	if fields == "" {
		writeJSON(w, http.StatusOK, tasks)
		return
	}
	out, err := projectFields(tasks, strings.Split(fields, ","))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// projectFields keeps only the named keys of each task; id is always kept.
func projectFields(tasks []model.Task, fields []string) ([]map[string]json.RawMessage, error) {
	out := make([]map[string]json.RawMessage, 0, len(tasks))
	for _, t := range tasks {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var full map[string]json.RawMessage
		if err := json.Unmarshal(b, &full); err != nil {
			return nil, err
		}
		rec := map[string]json.RawMessage{"id": full["id"]}
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			v, ok := full[f]
			if !ok {
				if f == "description" || f == "color" {
					v = json.RawMessage(`""`)
				} else {
					return nil, fmt.Errorf("unknown field %q", f)
				}
			}
			rec[f] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateTaskRequest is the body of POST /api/v1/tasks. An empty WBS with a
// Parent creates the next child of Parent.
type CreateTaskRequest struct {
	WBS         string `json:"wbs"`
	Parent      string `json:"parent,omitempty"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	LeadID      int64  `json:"lead_id,omitempty"`
	Progress    int    `json:"progress"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.WBS == "" && req.Parent != "" {
		siblings, err := s.st.SearchTasks(model.TaskFilter{Root: req.Parent})
		if err != nil {
			storeError(w, err)
			return
		}
		req.WBS = wbs.NextChildWBS(req.Parent, siblings)
	}
	t := model.Task{
		WBS:         req.WBS,
		Name:        req.Name,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Progress:    req.Progress,
		Priority:    model.Priority(req.Priority),
		Description: req.Description,
		Color:       req.Color,
	}
	if req.LeadID != 0 {
		t.Lead = &model.UserRef{ID: req.LeadID}
	}
	saved, err := s.st.CreateTask(t)
	if err != nil {
		storeError(w, err)
		return
	}
	s.audit(r, "create", saved.WBS, saved.Name)
	s.NotifyChanged(wbs.Root(saved.WBS))
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) writeTask(w http.ResponseWriter, r *http.Request, id int64) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	upd, err := model.ParseTaskUpdate(fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if upd.Empty() {
		http.Error(w, "no fields to write", http.StatusBadRequest)
		return
	}
	prev, _, _ := s.st.GetTask(id)
	saved, err := s.st.WriteTask(id, upd)
	if err != nil {
		storeError(w, err)
		return
	}
	s.audit(r, "write", saved.WBS, strings.Join(upd.Fields(), ","))
	root := wbs.Root(saved.WBS)
	if prev.WBS != "" && wbs.Root(prev.WBS) != root {
		root = ""
	}
	s.NotifyChanged(root)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) unlinkTask(w http.ResponseWriter, r *http.Request, id int64) {
	prev, ok, err := s.st.GetTask(id)
	if err != nil {
		storeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if err := s.st.UnlinkTask(id); err != nil {
		storeError(w, err)
		return
	}
	s.audit(r, "unlink", prev.WBS, prev.Name)
	s.NotifyChanged(wbs.Root(prev.WBS))
	w.WriteHeader(http.StatusNoContent)
}
