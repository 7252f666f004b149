package wbs

import (
	"sort"
	"strconv"

	"wbs-gantt/pkg/model"
)

// Groups is a partition of tasks by project root. Keys keeps first-seen
// order; ByRoot holds each group's tasks in input order.
type Groups struct {
	Keys   []string
	ByRoot map[string][]model.Task
}

// GroupByProjectRoot partitions tasks by the first WBS segment. Tasks with
// an empty WBS land in UnrootedKey so that no input task is lost.
func GroupByProjectRoot(tasks []model.Task) Groups {
	g := Groups{ByRoot: make(map[string][]model.Task)}
	for _, t := range tasks {
		key := Root(t.WBS)
		if _, seen := g.ByRoot[key]; !seen {
			g.Keys = append(g.Keys, key)
		}
		g.ByRoot[key] = append(g.ByRoot[key], t)
	}
	return g
}

// ExtractProjects lists the valid projects found in tasks. A root only
// becomes a project when a task whose WBS equals the root exists.
func ExtractProjects(tasks []model.Task) []model.Project {
	rootTasks := make(map[string]model.Task)
	for _, t := range tasks {
		if t.WBS == "" {
			continue
		}
		if _, ok := rootTasks[t.WBS]; !ok && Root(t.WBS) == t.WBS {
			rootTasks[t.WBS] = t
		}
	}

	var order []string
	byRoot := make(map[string]*model.Project)
	for _, t := range tasks {
		if t.WBS == "" {
			continue
		}
		root := Root(t.WBS)
		if root == UnrootedKey {
			continue
		}
		p, ok := byRoot[root]
		if !ok {
			rt, found := rootTasks[root]
			if !found {
				continue
			}
			p = &model.Project{Root: root, Name: rt.Name, RootTaskID: rt.ID}
			byRoot[root] = p
			order = append(order, root)
		}
		p.TaskCount++
		if validDate(t.StartDate) && (p.StartDate == "" || t.StartDate < p.StartDate) {
			p.StartDate = t.StartDate
		}
		if validDate(t.EndDate) && (p.EndDate == "" || t.EndDate > p.EndDate) {
			p.EndDate = t.EndDate
		}
	}

	out := make([]model.Project, 0, len(order))
	for _, root := range order {
		out = append(out, *byRoot[root])
	}
	sortProjects(out)
	return out
}

// sortProjects classifies every root once: numeric ordering applies only
// when all of them parse as integers, otherwise plain string ordering.
func sortProjects(projects []model.Project) {
	nums := make([]int, len(projects))
	numeric := true
	for i, p := range projects {
		n, err := strconv.Atoi(p.Root)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = n
	}
	if numeric {
		idx := make([]int, len(projects))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return nums[idx[a]] < nums[idx[b]] })
		sorted := make([]model.Project, len(projects))
		for i, j := range idx {
			sorted[i] = projects[j]
		}
		copy(projects, sorted)
		return
	}
	sort.SliceStable(projects, func(a, b int) bool { return projects[a].Root < projects[b].Root })
}

// FilterByProject keeps the root task and all of its descendants.
func FilterByProject(root string, tasks []model.Task) []model.Task {
	out := []model.Task{}
	if root == "" {
		return out
	}
	for _, t := range tasks {
		if InProject(t.WBS, root) {
			out = append(out, t)
		}
	}
	return out
}

// NextChildWBS proposes the code for a new direct child of root, one past
// the highest second segment in use.
func NextChildWBS(root string, tasks []model.Task) string {
	highest := 0
	for _, t := range tasks {
		if !IsDescendant(t.WBS, root) {
			continue
		}
		segs := Segments(t.WBS[len(root)+len(Separator):])
		n := 0
		if len(segs) > 0 {
			if v, err := strconv.Atoi(segs[0]); err == nil {
				n = v
			}
		}
		if n > highest {
			highest = n
		}
	}
	return root + Separator + strconv.Itoa(highest+1)
}
