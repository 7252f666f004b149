package api

import (
	"errors"
	"net/http"
	"strconv"

	"wbs-gantt/pkg/export"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Summary headers on the xlsx download.
const (
	HeaderExportStart = "X-Export-Start"
	HeaderExportEnd   = "X-Export-End"
	HeaderExportDays  = "X-Export-Days"
	HeaderExportTasks = "X-Export-Tasks"
)

func (s *Server) registerProjectRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/projects", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		all, err := s.st.SearchTasks(model.TaskFilter{})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wbs.ExtractProjects(all))
	}))

	mux.HandleFunc("/api/v1/projects/{root}/{view}", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		root := r.PathValue("root")
		tasks, err := s.st.SearchTasks(model.TaskFilter{Root: root})
		if err != nil {
			storeError(w, err)
			return
		}
		today := s.opts.Now()
		switch r.PathValue("view") {
		case "tasks":
			writeJSON(w, http.StatusOK, ganttTasks(tasks))
		case "gantt":
			writeJSON(w, http.StatusOK, wbs.TimelineBars(tasks, today))
		case "details":
			if !hasRoot(root, tasks) {
				http.Error(w, "project not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, wbs.ProjectDetails(root, tasks, today))
		case "next-wbs":
			writeJSON(w, http.StatusOK, map[string]string{"wbs": wbs.NextChildWBS(root, tasks)})
		case "export.xlsx":
			s.exportProject(w, root, tasks)
		default:
			http.NotFound(w, r)
		}
	}))
}

// ganttTasks keeps the tasks a chart can draw: a name and both dates.
func ganttTasks(tasks []model.Task) []model.Task {
	out := []model.Task{}
	for _, t := range tasks {
		if t.Name != "" && t.StartDate != "" && t.EndDate != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasRoot(root string, tasks []model.Task) bool {
	for _, t := range tasks {
		if t.WBS == root {
			return true
		}
	}
	return false
}

func (s *Server) exportProject(w http.ResponseWriter, root string, tasks []model.Task) {
	f, sum, err := export.Workbook(root, tasks, s.opts.Now())
	if errors.Is(err, export.ErrNoTasks) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if errors.Is(err, export.ErrRangeTooWide) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", xlsxContentType)
	h.Set("Content-Disposition", `attachment; filename="`+sum.FileName+`"`)
	h.Set(HeaderExportStart, sum.Start)
	h.Set(HeaderExportEnd, sum.End)
	h.Set(HeaderExportDays, strconv.Itoa(sum.Days))
	h.Set(HeaderExportTasks, strconv.Itoa(sum.Tasks))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
