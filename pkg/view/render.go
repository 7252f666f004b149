package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

var (
	colorHeader = lipgloss.Color("#4A90E2")
	colorDone   = lipgloss.Color("#77A651")
	colorLeft   = lipgloss.Color("#a9b1d6")
	colorDelay  = lipgloss.Color("#f7768e")
	colorMuted  = lipgloss.Color("#565f89")
	colorUrgent = lipgloss.Color("#e0af68")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorHeader)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(colorHeader)
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	delayedStyle  = lipgloss.NewStyle().Foreground(colorDelay)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	doneStyle     = lipgloss.NewStyle().Foreground(colorDone)
	leftStyle     = lipgloss.NewStyle().Foreground(colorLeft)
	urgentStyle   = lipgloss.NewStyle().Foreground(colorUrgent)
	paneStyle     = lipgloss.NewStyle().
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(colorMuted).
			PaddingLeft(1)
)

const (
	glyphDone = "█"
	glyphLeft = "░"
	listWidth = 72
)

// Render draws the selector, the task list and the timeline side by side.
// width bounds the timeline columns; zero means unbounded.
func Render(m Model, width int) string {
	var out []string
	out = append(out, renderSelector(m))
	if len(m.Rows) == 0 {
		out = append(out, "", mutedStyle.Render("No tasks in this project."))
		return strings.Join(out, "\n")
	}
	out = append(out, "", lipgloss.JoinHorizontal(lipgloss.Top,
		renderList(m),
		paneStyle.Render(renderTimeline(m, width-listWidth-3)),
	))
	if footer := renderSkipped(m.Timeline.Skipped); footer != "" {
		out = append(out, "", footer)
	}
	return strings.Join(out, "\n")
}

func renderSelector(m Model) string {
	if len(m.Groups) == 0 {
		return titleStyle.Render("Projects") + " " + mutedStyle.Render("none")
	}
	parts := make([]string, 0, len(m.Groups))
	for _, g := range m.Groups {
		label := fmt.Sprintf("%s %s (%d)", g.Root, g.Name, g.TaskCount)
		if g.Current {
			parts = append(parts, selectedStyle.Render("["+label+"]"))
			continue
		}
		parts = append(parts, label)
	}
	return titleStyle.Render("Projects") + "  " + strings.Join(parts, "  ")
}

func renderList(m Model) string {
	lines := []string{headerStyle.Render(listLine(" ", "WBS", "Task", "Lead", "Start", "End", "Days", "%"))}
	for _, r := range m.Rows {
		mark := " "
		if r.Selected {
			mark = ">"
		}
		code := strings.Repeat("  ", max(r.Depth-1, 0)) + r.WBS
		days := "-"
		if r.Days > 0 {
			days = fmt.Sprint(r.Days)
		}
		line := listLine(mark, code, r.Name, r.Lead, r.Start, r.End, days, fmt.Sprint(r.Progress))
		switch {
		case r.Selected:
			line = selectedStyle.Render(line)
		case r.Delayed:
			line = delayedStyle.Render(line)
		case r.Priority == model.PriorityUrgent:
			line = urgentStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func listLine(mark, code, name, lead, start, end, days, pct string) string {
	return fmt.Sprintf("%s%-8s %-20s %-12s %-10s %-10s %4s %3s",
		mark, clip(code, 8), clip(name, 20), clip(lead, 12), clip(start, 10), clip(end, 10), days, pct)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// unit is one timeline column.
type unit struct {
	start, end time.Time
	label      string
}

func cellWidth(mode Mode) int {
	if mode == ModeDay {
		return 3
	}
	return 4
}

// columns splits [from, to] into timeline cells for mode.
func columns(mode Mode, from, to time.Time) []unit {
	var out []unit
	cur := from
	switch mode {
	case ModeWeek:
		cur = cur.AddDate(0, 0, -((int(cur.Weekday()) + 6) % 7))
	case ModeMonth:
		cur = time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	for !cur.After(to) {
		var next time.Time
		var label string
		switch mode {
		case ModeWeek:
			next = cur.AddDate(0, 0, 7)
			_, w := cur.ISOWeek()
			label = fmt.Sprintf("W%02d", w)
		case ModeMonth:
			next = cur.AddDate(0, 1, 0)
			label = cur.Format("Jan")
		default:
			next = cur.AddDate(0, 0, 1)
			label = cur.Format("02")
		}
		out = append(out, unit{start: cur, end: next.AddDate(0, 0, -1), label: label})
		cur = next
	}
	return out
}

// span is the date range covered by all bars.
func span(bars []model.TimelineBar) (time.Time, time.Time) {
	var from, to time.Time
	for i, b := range bars {
		s, _ := wbs.ParseDate(b.Start)
		e, _ := wbs.ParseDate(b.End)
		if i == 0 || s.Before(from) {
			from = s
		}
		if i == 0 || e.After(to) {
			to = e
		}
	}
	return from, to
}

func renderTimeline(m Model, width int) string {
	bars := m.Timeline.Bars
	if len(bars) == 0 {
		lines := []string{headerStyle.Render("Timeline")}
		for range m.Rows {
			lines = append(lines, mutedStyle.Render("·"))
		}
		return strings.Join(lines, "\n")
	}
	from, to := span(bars)
	units := columns(m.Mode, from, to)
	cw := cellWidth(m.Mode)
	more := false
	if width > 0 && len(units)*cw > width {
		n := max(width/cw-1, 1)
		if n < len(units) {
			units = units[:n]
			more = true
		}
	}

	var head strings.Builder
	for _, u := range units {
		head.WriteString(fmt.Sprintf("%-*s", cw, u.label))
	}
	if more {
		head.WriteString("›")
	}
	lines := []string{headerStyle.Render(head.String())}
	for _, r := range m.Rows {
		if r.Bar < 0 {
			lines = append(lines, mutedStyle.Render("not drawn"))
			continue
		}
		lines = append(lines, barLine(bars[r.Bar], units, cw, r.Delayed))
	}
	return strings.Join(lines, "\n")
}

func barLine(b model.TimelineBar, units []unit, cw int, delayed bool) string {
	s, _ := wbs.ParseDate(b.Start)
	e, _ := wbs.ParseDate(b.End)
	covered := 0
	for _, u := range units {
		if !u.start.After(e) && !u.end.Before(s) {
			covered++
		}
	}
	filled := covered * b.Progress / 100

	var line strings.Builder
	n := 0
	for _, u := range units {
		if u.start.After(e) || u.end.Before(s) {
			line.WriteString(strings.Repeat(" ", cw))
			continue
		}
		cell := strings.Repeat(glyphLeft, cw)
		style := leftStyle
		if n < filled {
			cell = strings.Repeat(glyphDone, cw)
			style = doneStyle
		}
		if delayed {
			style = delayedStyle
		}
		line.WriteString(style.Render(cell))
		n++
	}
	return line.String()
}

func renderSkipped(skipped []model.SkippedTask) string {
	if len(skipped) == 0 {
		return ""
	}
	lines := []string{mutedStyle.Render(fmt.Sprintf("%d task(s) not drawn:", len(skipped)))}
	for _, sk := range skipped {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %s (id %d): %s", sk.WBS, sk.ID, sk.Reason)))
	}
	return strings.Join(lines, "\n")
}
