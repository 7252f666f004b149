package wbs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"wbs-gantt/pkg/model"
)

// DateLayout is the only accepted date form.
const DateLayout = "2006-01-02"

var (
	ErrDateFormat = errors.New("date is not YYYY-MM-DD")
	ErrDateOrder  = errors.New("end date before start date")

	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ParseDate accepts strictly four-digit year, two-digit month and day that
// also name a real calendar day.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrDateFormat)
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrDateFormat)
	}
	return d, nil
}

func validDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// ValidateSpan checks both dates and their order.
func ValidateSpan(start, end string) error {
	s, err := ParseDate(start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if e.Before(s) {
		return ErrDateOrder
	}
	return nil
}

// DurationDays counts days in the span, both ends included. Invalid spans
// count as zero.
func DurationDays(start, end string) int {
	s, err := ParseDate(start)
	if err != nil {
		return 0
	}
	e, err := ParseDate(end)
	if err != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// IsDelayed is true for unfinished tasks whose end date has passed.
func IsDelayed(t model.Task, today time.Time) bool {
	end, err := ParseDate(t.EndDate)
	if err != nil {
		return false
	}
	return t.Progress < 100 && end.Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dependency finds the immediate parent of t inside the same filtered set.
func Dependency(t model.Task, filtered []model.Task) (model.Task, bool) {
	parent, ok := Parent(t.WBS)
	if !ok {
		return model.Task{}, false
	}
	for _, c := range filtered {
		if c.WBS == parent {
			return c, true
		}
	}
	return model.Task{}, false
}

// TimelineBars converts a project's tasks into renderer bars. Tasks whose
// dates fail validation are left out and listed in Skipped.
func TimelineBars(filtered []model.Task, today time.Time) model.Timeline {
	tl := model.Timeline{Bars: []model.TimelineBar{}}
	for _, t := range filtered {
		if err := ValidateSpan(t.StartDate, t.EndDate); err != nil {
			tl.Skipped = append(tl.Skipped, model.SkippedTask{ID: t.ID, WBS: t.WBS, Reason: err.Error()})
			continue
		}
		deps := []string{}
		if parent, ok := Dependency(t, filtered); ok {
			deps = append(deps, strconv.FormatInt(parent.ID, 10))
		}
		class := "wbs-group-" + Root(t.WBS) + " priority-" + string(t.Priority.OrDefault())
		if IsDelayed(t, today) {
			class += " delayed"
		}
		tl.Bars = append(tl.Bars, model.TimelineBar{
			ID:           strconv.FormatInt(t.ID, 10),
			Name:         t.WBS + ": " + t.Name,
			Start:        t.StartDate,
			End:          t.EndDate,
			Progress:     t.Progress,
			Dependencies: deps,
			CustomClass:  class,
		})
	}
	return tl
}
