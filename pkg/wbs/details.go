package wbs

import (
	"time"

	"wbs-gantt/pkg/model"
)

// OverallProgress averages the progress of a root's descendants. A root
// without descendants reports its own progress.
func OverallProgress(root string, tasks []model.Task) float64 {
	var sum, n int
	own := 0
	for _, t := range tasks {
		switch {
		case t.WBS == root:
			own = t.Progress
		case IsDescendant(t.WBS, root):
			sum += t.Progress
			n++
		}
	}
	if n == 0 {
		return float64(own)
	}
	return float64(sum) / float64(n)
}

// ProjectDetails computes the statistics of one project from the full
// task snapshot.
func ProjectDetails(root string, tasks []model.Task, today time.Time) model.ProjectDetails {
	members := FilterByProject(root, tasks)
	d := model.ProjectDetails{
		Root:      root,
		Name:      "Project " + root,
		Completed: []model.Task{},
		Delayed:   []model.Task{},
		Critical:  []model.Task{},
	}
	for _, t := range members {
		if t.WBS == root && t.Name != "" {
			d.Name = t.Name
		}
		d.TotalTasks++
		switch {
		case t.Progress >= 100:
			d.CompletedTasks++
			d.Completed = append(d.Completed, t)
		case t.Progress > 0:
			d.InProgressTasks++
		}
		if IsDelayed(t, today) {
			d.DelayedTasks++
			d.Delayed = append(d.Delayed, t)
		}
		if t.Priority.IsCritical() {
			d.Critical = append(d.Critical, t)
		}
		if validDate(t.StartDate) && (d.StartDate == "" || t.StartDate < d.StartDate) {
			d.StartDate = t.StartDate
		}
		if validDate(t.EndDate) && (d.EndDate == "" || t.EndDate > d.EndDate) {
			d.EndDate = t.EndDate
		}
	}
	d.DurationDays = DurationDays(d.StartDate, d.EndDate)
	d.OverallProgress = OverallProgress(root, members)
	return d
}
