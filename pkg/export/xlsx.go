// Package export renders a project as a spreadsheet Gantt chart and
// publishes task spans to a calendar.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

const (
	SheetName   = "Project Gantt Chart"
	headerFill  = "4A90E2"
	spanFill    = "77A651"
	taskHeight  = 20
	gapHeight   = 5
	fixedCols   = 12
	dayColWidth = 3
)

var (
	ErrNoTasks = errors.New("no tasks found for project")
	// ErrRangeTooWide means the day columns would not fit in one sheet.
	ErrRangeTooWide = errors.New("project spans more days than a sheet has columns")


	headers     = []string{"Project Name", "Start Date", "End Date", "WBS", "Task", "Lead", "Start", "End", "Days", "% Done", "Duration", ""}
	fixedWidths = []float64{15, 12, 12, 8, 25, 15, 12, 12, 8, 10, 10, 2}
)

// Summary describes a finished export.
type Summary struct {
	Root     string `json:"wbs_root"`
	FileName string `json:"file_name"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Days     int    `json:"days"`
	Tasks    int    `json:"tasks"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Gantt chart exported: project %s, %s to %s, %d days, %d tasks", s.Root, s.Start, s.End, s.Days, s.Tasks)
}

// FileName is the download name for a project's workbook.
func FileName(root string) string {
	return "Project_" + root + "_GanttChart.xlsx"
}

// Range is the min start and max end over the valid dates of tasks. A
// missing start defaults to today and a missing end to start + 3 months.
func Range(tasks []model.Task, today time.Time) (time.Time, time.Time) {
	var start, end time.Time
	for _, t := range tasks {
		if s, err := wbs.ParseDate(t.StartDate); err == nil && (start.IsZero() || s.Before(start)) {
			start = s
		}
		if e, err := wbs.ParseDate(t.EndDate); err == nil && (end.IsZero() || e.After(end)) {
			end = e
		}
	}
	if start.IsZero() {
		start = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = start.AddDate(0, 3, 0)
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}

func days(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Workbook builds the Gantt sheet for the tasks of one project.
func Workbook(root string, tasks []model.Task, today time.Time) (*excelize.File, Summary, error) {
	if len(tasks) == 0 {
		return nil, Summary{}, fmt.Errorf("%w %q", ErrNoTasks, root)
	}
	start, end := Range(tasks, today)
	if n := int(end.Sub(start).Hours()/24) + 1; fixedCols+n > excelize.MaxColumns {
		return nil, Summary{}, fmt.Errorf("%w: %s to %s is %d days, at most %d fit",
			ErrRangeTooWide, start.Format(wbs.DateLayout), end.Format(wbs.DateLayout), n, excelize.MaxColumns-fixedCols)
	}
	cols := days(start, end)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, Summary{}, err
	}
	if err := writeSheet(f, root, tasks, start, end, cols); err != nil {
		_ = f.Close()
		return nil, Summary{}, err
	}
	sum := Summary{
		Root:     root,
		FileName: FileName(root),
		Start:    start.Format(wbs.DateLayout),
		End:      end.Format(wbs.DateLayout),
		Days:     len(cols),
		Tasks:    len(tasks),
	}
	return f, sum, nil
}

func writeSheet(f *excelize.File, root string, tasks []model.Task, start, end time.Time, cols []time.Time) error {
	lastCol, err := excelize.ColumnNumberToName(fixedCols + len(cols))
	if err != nil {
		return err
	}

	header := make([]interface{}, 0, fixedCols+len(cols))
	for _, h := range headers {
		header = append(header, h)
	}
	for _, d := range cols {
		header = append(header, d.Format("02/01"))
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for i, w := range fixedWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return err
		}
	}
	if len(cols) > 0 {
		first, _ := excelize.ColumnNumberToName(fixedCols + 1)
		if err := f.SetColWidth(SheetName, first, lastCol, dayColWidth); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	spanStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{spanFill}},
	})
	if err != nil {
		return err
	}

	row := 2
	for i, t := range tasks {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := taskRow(root, t, start, end)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
		if err := f.SetRowHeight(SheetName, row, taskHeight); err != nil {
			return err
		}
		if err := fillSpan(f, row, t, cols, spanStyle); err != nil {
			return err
		}
		row++
		if i < len(tasks)-1 {
			if err := f.SetRowHeight(SheetName, row, gapHeight); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func taskRow(root string, t model.Task, start, end time.Time) []interface{} {
	lead := ""
	if t.Lead != nil {
		lead = t.Lead.Name
	}
	startDate, endDate := t.StartDate, t.EndDate
	if startDate == "" {
		startDate = start.Format(wbs.DateLayout)
	}
	if endDate == "" {
		endDate = end.Format(wbs.DateLayout)
	}
	var duration interface{} = ""
	if t.Duration > 0 {
		duration = t.Duration
	}
	return []interface{}{
		"Project " + root,
		startDate,
		endDate,
		t.WBS,
		t.Name,
		lead,
		t.StartDate,
		t.EndDate,
		duration,
		strconv.Itoa(t.Progress) + "%",
		duration,
		"",
	}
}

func fillSpan(f *excelize.File, row int, t model.Task, cols []time.Time, style int) error {
	s, errS := wbs.ParseDate(t.StartDate)
	e, errE := wbs.ParseDate(t.EndDate)
	if errS != nil || errE != nil {
		return nil
	}
	for i, d := range cols {
		if d.Before(s) || d.After(e) {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(fixedCols+1+i, row)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// Write streams the project workbook to w.
func Write(w io.Writer, root string, tasks []model.Task, today time.Time) (Summary, error) {
	f, sum, err := Workbook(root, tasks, today)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return Summary{}, fmt.Errorf("write workbook: %w", err)
	}
	return sum, nil
}
