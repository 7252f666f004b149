package export

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

var today = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func projectTasks() []model.Task {
	return []model.Task{
		{ID: 1, WBS: "1", Name: "Plan", StartDate: "2024-01-01", EndDate: "2024-01-03", Progress: 100, Duration: 3, Lead: &model.UserRef{ID: 2, Name: "Ana"}},
		{ID: 2, WBS: "1.1", Name: "Build", StartDate: "2024-01-03", EndDate: "2024-01-05", Progress: 40, Duration: 3},
		{ID: 3, WBS: "1.2", Name: "Broken", StartDate: "2024-13-01", EndDate: "2024-01-04"},
	}
}

func TestRange(t *testing.T) {
	start, end := Range(projectTasks(), today)
	assert.Equal(t, "2024-01-01", start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-05", end.Format("2006-01-02"))

	start, end = Range([]model.Task{{WBS: "9", Name: "undated"}}, today)
	assert.Equal(t, "2024-06-01", start.Format("2006-01-02"))
	assert.Equal(t, "2024-09-01", end.Format("2006-01-02"))
}

func TestWorkbookLayout(t *testing.T) {
	var buf bytes.Buffer
	sum, err := Write(&buf, "1", projectTasks(), today)
	require.NoError(t, err)
	assert.Equal(t, Summary{Root: "1", FileName: "Project_1_GanttChart.xlsx", Start: "2024-01-01", End: "2024-01-05", Days: 5, Tasks: 3}, sum)
	assert.Contains(t, sum.String(), "5 days")

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Project Name", get("A1"))
	assert.Equal(t, "Duration", get("K1"))
	assert.Equal(t, "01/01", get("M1"))
	assert.Equal(t, "05/01", get("Q1"))
	assert.Equal(t, "", get("R1"))

	assert.Equal(t, "Project 1", get("A2"))
	assert.Equal(t, "Ana", get("F2"))
	assert.Equal(t, "100%", get("J2"))
	assert.Equal(t, "", get("A3"), "gap row")
	assert.Equal(t, "1.1", get("D4"))
	assert.Equal(t, "", get("F4"))

	h, err := f.GetRowHeight(SheetName, 2)
	require.NoError(t, err)
	assert.Equal(t, 20.0, h)
	h, err = f.GetRowHeight(SheetName, 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, h)

	w, err := f.GetColWidth(SheetName, "E")
	require.NoError(t, err)
	assert.Equal(t, 25.0, w)
	w, err = f.GetColWidth(SheetName, "N")
	require.NoError(t, err)
	assert.Equal(t, 3.0, w)

	inSpan, err := f.GetCellStyle(SheetName, "O4")
	require.NoError(t, err)
	outSpan, err := f.GetCellStyle(SheetName, "M4")
	require.NoError(t, err)
	assert.NotZero(t, inSpan)
	assert.Zero(t, outSpan)

	broken, err := f.GetCellStyle(SheetName, "N6")
	require.NoError(t, err)
	assert.Zero(t, broken, "invalid dates get no span")

	panes, err := f.GetPanes(SheetName)
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)
}

func TestWorkbookEmpty(t *testing.T) {
	_, _, err := Workbook("7", nil, today)
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestWorkbookRangeTooWide(t *testing.T) {
	wide := []model.Task{{ID: 1, WBS: "8", Name: "Forever", StartDate: "2000-01-01", EndDate: "2199-12-31"}}
	_, _, err := Workbook("8", wide, today)
	assert.ErrorIs(t, err, ErrRangeTooWide)

	// the widest span that still fits exactly fills the last column
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, excelize.MaxColumns-fixedCols-1)
	fits := []model.Task{{ID: 1, WBS: "8", Name: "Edge", StartDate: "2000-01-01", EndDate: end.Format(wbs.DateLayout)}}
	f, sum, err := Workbook("8", fits, today)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, excelize.MaxColumns-fixedCols, sum.Days)
}

func TestTaskEvent(t *testing.T) {
	ev, err := TaskEvent("1", projectTasks()[0])
	require.NoError(t, err)
	assert.Equal(t, "1: Plan", ev.Summary)
	assert.Equal(t, "2024-01-01", ev.Start.Date)
	assert.Equal(t, "2024-01-04", ev.End.Date)
	assert.Equal(t, "1", ev.ExtendedProperties.Private[taskIDProperty])
	assert.Contains(t, ev.Description, "Lead: Ana")

	_, err = TaskEvent("1", projectTasks()[2])
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	var mu sync.Mutex
	var inserted, patched []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
			items := []*calendar.Event{}
			if strings.HasSuffix(r.URL.Query().Get("privateExtendedProperty"), "=2") {
				items = append(items, &calendar.Event{Id: "existing"})
			}
			_ = json.NewEncoder(w).Encode(calendar.Events{Items: items})
		case r.Method == http.MethodPost:
			var ev calendar.Event
			_ = json.NewDecoder(r.Body).Decode(&ev)
			inserted = append(inserted, ev.Summary)
			_ = json.NewEncoder(w).Encode(calendar.Event{Id: "new"})
		case r.Method == http.MethodPatch:
			patched = append(patched, r.URL.Path)
			_ = json.NewEncoder(w).Encode(calendar.Event{Id: "existing"})
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	svc, err := calendar.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	res, err := NewCalendarPublisher(svc, "").Publish(context.Background(), "1", projectTasks())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, res.Skipped, 1)
	assert.Equal(t, []string{"1: Plan"}, inserted)
	require.Len(t, patched, 1)
	assert.Contains(t, patched[0], "/calendars/primary/events/existing")
}
