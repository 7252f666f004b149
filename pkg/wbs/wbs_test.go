package wbs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/model"
)

func task(id int64, code string) model.Task {
	return model.Task{ID: id, WBS: code, Name: "task " + code, StartDate: "2024-01-01", EndDate: "2024-01-10"}
}

func wbsCodes(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.WBS)
	}
	return out
}

func TestRootParentDepth(t *testing.T) {
	tests := []struct {
		code   string
		root   string
		parent string
		hasPar bool
		depth  int
	}{
		{"2.3.1", "2", "2.3", true, 3},
		{"2", "2", "", false, 1},
		{"", "", "", false, 0},
		{"a.b", "a", "a", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.root, Root(tt.code))
			p, ok := Parent(tt.code)
			assert.Equal(t, tt.hasPar, ok)
			assert.Equal(t, tt.parent, p)
			assert.Equal(t, tt.depth, Depth(tt.code))
		})
	}
}

func TestCompareNatural(t *testing.T) {
	tasks := []model.Task{task(1, "1.10"), task(2, "1.2"), task(3, "1"), task(4, "10"), task(5, "2")}
	Sort(tasks)
	assert.Equal(t, []string{"1", "1.2", "1.10", "2", "10"}, wbsCodes(tasks))
}

func TestGroupByProjectRootPartitions(t *testing.T) {
	tasks := []model.Task{task(1, "2.1"), task(2, "1"), task(3, ""), task(4, "2"), task(5, "1.1"), task(6, "")}
	g := GroupByProjectRoot(tasks)

	assert.Equal(t, []string{"2", "1", UnrootedKey}, g.Keys)
	assert.Equal(t, []string{"2.1", "2"}, wbsCodes(g.ByRoot["2"]))
	assert.Equal(t, []string{"1", "1.1"}, wbsCodes(g.ByRoot["1"]))
	assert.Len(t, g.ByRoot[UnrootedKey], 2)

	total := 0
	seen := map[int64]int{}
	for _, k := range g.Keys {
		for _, tk := range g.ByRoot[k] {
			seen[tk.ID]++
			total++
		}
	}
	assert.Equal(t, len(tasks), total)
	for _, tk := range tasks {
		assert.Equal(t, 1, seen[tk.ID], "task %d", tk.ID)
	}
}

func TestExtractProjectsRequiresRootTask(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, WBS: "1", Name: "Planning", StartDate: "2024-01-05", EndDate: "2024-01-06"},
		{ID: 2, WBS: "1.1", Name: "Design", StartDate: "2024-01-01", EndDate: "2024-01-20"},
		{ID: 3, WBS: "1.1.1", Name: "Sketch", StartDate: "", EndDate: "2024-02-01"},
		{ID: 4, WBS: "3.1", Name: "Orphan", StartDate: "2023-01-01", EndDate: "2025-01-01"},
		{ID: 5, WBS: "", Name: "No code"},
	}
	projects := ExtractProjects(tasks)
	require.Len(t, projects, 1)
	p := projects[0]
	assert.Equal(t, "1", p.Root)
	assert.Equal(t, "Planning", p.Name)
	assert.Equal(t, 3, p.TaskCount)
	assert.Equal(t, "2024-01-01", p.StartDate)
	assert.Equal(t, "2024-02-01", p.EndDate)
	assert.Equal(t, int64(1), p.RootTaskID)
}

func TestExtractProjectsOrdering(t *testing.T) {
	roots := func(ps []model.Project) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Root)
		}
		return out
	}

	numeric := []model.Task{task(1, "10"), task(2, "2"), task(3, "1")}
	assert.Equal(t, []string{"1", "2", "10"}, roots(ExtractProjects(numeric)))

	mixed := []model.Task{task(1, "b"), task(2, "a"), task(3, "10x")}
	assert.Equal(t, []string{"10x", "a", "b"}, roots(ExtractProjects(mixed)))

	partlyNumeric := []model.Task{task(1, "10"), task(2, "9"), task(3, "x")}
	assert.Equal(t, []string{"10", "9", "x"}, roots(ExtractProjects(partlyNumeric)))
}

func TestFilterByProjectUsesSegmentBoundary(t *testing.T) {
	tasks := []model.Task{task(1, "1"), task(2, "1.2"), task(3, "10"), task(4, "10.1")}
	assert.Equal(t, []string{"1", "1.2"}, wbsCodes(FilterByProject("1", tasks)))
	assert.Equal(t, []string{"10", "10.1"}, wbsCodes(FilterByProject("10", tasks)))
	assert.Empty(t, FilterByProject("", tasks))
}

func TestDependency(t *testing.T) {
	parent := task(7, "2.3")
	child := task(8, "2.3.1")

	dep, ok := Dependency(child, []model.Task{task(1, "2"), parent, child})
	require.True(t, ok)
	assert.Equal(t, int64(7), dep.ID)

	_, ok = Dependency(child, []model.Task{task(1, "2"), child})
	assert.False(t, ok)

	_, ok = Dependency(task(1, "2"), []model.Task{task(1, "2")})
	assert.False(t, ok)
}

func TestNextChildWBS(t *testing.T) {
	tasks := []model.Task{task(1, "3"), task(2, "3.1"), task(3, "3.2"), task(4, "3.4"), task(5, "3.4.9"), task(6, "30.7")}
	assert.Equal(t, "3.5", NextChildWBS("3", tasks))
	assert.Equal(t, "4.1", NextChildWBS("4", tasks))
	assert.Equal(t, "5.1", NextChildWBS("5", []model.Task{task(1, "5.x")}))
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2024-02-29")
	assert.NoError(t, err)
	for _, bad := range []string{"2024-13-01", "2023-02-29", "24-01-01", "2024-1-01", "2024-01-01T00:00:00", ""} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrDateFormat, bad)
	}
}

func TestTimelineBarsSkipsInvalidDates(t *testing.T) {
	today := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: 1, WBS: "1", Name: "Root", StartDate: "2024-01-01", EndDate: "2024-01-31", Progress: 100, Priority: model.PriorityHigh},
		{ID: 2, WBS: "1.1", Name: "Bad month", StartDate: "2024-13-01", EndDate: "2024-12-31"},
		{ID: 3, WBS: "1.2", Name: "Late", StartDate: "2024-01-10", EndDate: "2024-02-01", Progress: 40},
		{ID: 4, WBS: "1.3", Name: "Backwards", StartDate: "2024-02-10", EndDate: "2024-02-01"},
		{ID: 5, WBS: "1.1.1", Name: "Pruned parent", StartDate: "2024-03-10", EndDate: "2024-03-12"},
	}
	tl := TimelineBars(tasks, today)

	require.Len(t, tl.Bars, 3)
	assert.Equal(t, "1: Root", tl.Bars[0].Name)
	assert.Equal(t, "wbs-group-1 priority-high", tl.Bars[0].CustomClass)
	assert.Empty(t, tl.Bars[0].Dependencies)

	assert.Equal(t, "3", tl.Bars[1].ID)
	assert.Equal(t, []string{"1"}, tl.Bars[1].Dependencies)
	assert.Equal(t, "wbs-group-1 priority-medium delayed", tl.Bars[1].CustomClass)

	// the parent 1.1 is in the set but not renderable; the edge still refers to it
	assert.Equal(t, []string{"2"}, tl.Bars[2].Dependencies)

	require.Len(t, tl.Skipped, 2)
	assert.Equal(t, int64(2), tl.Skipped[0].ID)
	assert.Contains(t, tl.Skipped[0].Reason, "start")
	assert.Equal(t, int64(4), tl.Skipped[1].ID)
	assert.Equal(t, ErrDateOrder.Error(), tl.Skipped[1].Reason)

	// the plain listing still holds the rejected task
	assert.Equal(t, []string{"1", "1.1", "1.2", "1.3", "1.1.1"}, wbsCodes(FilterByProject("1", tasks)))
}

func TestDurationDays(t *testing.T) {
	assert.Equal(t, 1, DurationDays("2024-01-01", "2024-01-01"))
	assert.Equal(t, 31, DurationDays("2024-01-01", "2024-01-31"))
	assert.Equal(t, 0, DurationDays("2024-01-02", "2024-01-01"))
	assert.Equal(t, 0, DurationDays("bad", "2024-01-01"))
}

func TestProjectDetails(t *testing.T) {
	today := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: 1, WBS: "1", Name: "Alpha", StartDate: "2024-01-01", EndDate: "2024-01-05", Progress: 100, Priority: model.PriorityHigh},
		{ID: 2, WBS: "1.1", Name: "A", StartDate: "2024-01-06", EndDate: "2024-01-15", Progress: 50},
		{ID: 3, WBS: "1.2", Name: "B", StartDate: "2024-01-16", EndDate: "2024-03-01", Progress: 0, Priority: model.PriorityUrgent},
		{ID: 4, WBS: "2", Name: "Other", StartDate: "2024-01-01", EndDate: "2024-01-02"},
	}
	d := ProjectDetails("1", tasks, today)
	assert.Equal(t, "Alpha", d.Name)
	assert.Equal(t, 3, d.TotalTasks)
	assert.Equal(t, 1, d.CompletedTasks)
	assert.Equal(t, 1, d.InProgressTasks)
	assert.Equal(t, 1, d.DelayedTasks)
	assert.Equal(t, int64(2), d.Delayed[0].ID)
	assert.Len(t, d.Critical, 2)
	assert.Equal(t, "2024-01-01", d.StartDate)
	assert.Equal(t, "2024-03-01", d.EndDate)
	assert.Equal(t, 61, d.DurationDays)
	assert.InDelta(t, 25.0, d.OverallProgress, 0.001)
}

func TestOverallProgressWithoutChildren(t *testing.T) {
	tasks := []model.Task{{WBS: "4", Progress: 30}}
	assert.InDelta(t, 30.0, OverallProgress("4", tasks), 0.001)
}
