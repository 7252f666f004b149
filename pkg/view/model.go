package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

// Mode is the timeline granularity.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// ParseMode accepts day, week or month in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDay, ModeWeek, ModeMonth:
		return m, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// Group is one entry of the project selector.
type Group struct {
	Root      string
	Name      string
	TaskCount int
	Start     string
	End       string
	Current   bool
}

// Row is one line of the task list pane.
type Row struct {
	ID       int64
	WBS      string
	Name     string
	Lead     string
	Start    string
	End      string
	Days     int
	Progress int
	Priority model.Priority
	Depth    int
	Delayed  bool
	Selected bool
	// Bar is the index into Model.Timeline.Bars, -1 when not drawn.
	Bar int
}

// Model is everything a renderer needs, with no reference back to the
// session.
type Model struct {
	Root     string
	Mode     Mode
	Today    time.Time
	Groups   []Group
	Rows     []Row
	Timeline model.Timeline
}

// Build derives the view-model of one project from already loaded data.
func Build(projects []model.Project, root string, tasks []model.Task, selected int64, mode Mode, today time.Time) Model {
	m := Model{Root: root, Mode: mode, Today: today}
	for _, p := range projects {
		m.Groups = append(m.Groups, Group{
			Root:      p.Root,
			Name:      p.Name,
			TaskCount: p.TaskCount,
			Start:     p.StartDate,
			End:       p.EndDate,
			Current:   p.Root == root,
		})
	}

	sorted := append([]model.Task(nil), tasks...)
	wbs.Sort(sorted)
	m.Timeline = wbs.TimelineBars(sorted, today)
	barOf := make(map[string]int, len(m.Timeline.Bars))
	for i, b := range m.Timeline.Bars {
		barOf[b.ID] = i
	}
	for _, t := range sorted {
		bar, ok := barOf[strconv.FormatInt(t.ID, 10)]
		if !ok {
			bar = -1
		}
		m.Rows = append(m.Rows, Row{
			ID:       t.ID,
			WBS:      t.WBS,
			Name:     t.Name,
			Lead:     t.LeadName(),
			Start:    t.StartDate,
			End:      t.EndDate,
			Days:     wbs.DurationDays(t.StartDate, t.EndDate),
			Progress: t.Progress,
			Priority: t.Priority.OrDefault(),
			Depth:    wbs.Depth(t.WBS),
			Delayed:  wbs.IsDelayed(t, today),
			Selected: t.ID == selected && selected != 0,
			Bar:      bar,
		})
	}
	return m
}

// Current returns the selector entry of the current project.
func (m Model) Current() (Group, bool) {
	for _, g := range m.Groups {
		if g.Current {
			return g, true
		}
	}
	return Group{}, false
}
