// Package wbs derives project structure from dot-delimited WBS codes.
// Every function here is pure: callers pass a task snapshot and get a new
// view back, nothing is cached between calls.
package wbs

import (
	"sort"
	"strconv"
	"strings"

	"wbs-gantt/pkg/model"
)

// Separator splits WBS segments, most significant first.
const Separator = "."

// UnrootedKey groups tasks whose WBS has no usable root segment.
const UnrootedKey = ""

// Segments splits a code into its parts. An empty code has no segments.
func Segments(code string) []string {
	if code == "" {
		return nil
	}
	return strings.Split(code, Separator)
}

// Root returns the first segment of code, or the whole code when it has
// no separator.
func Root(code string) string {
	if i := strings.Index(code, Separator); i >= 0 {
		return code[:i]
	}
	return code
}

// Parent strips the last segment. ok is false for single-segment codes.
func Parent(code string) (string, bool) {
	i := strings.LastIndex(code, Separator)
	if i < 0 {
		return "", false
	}
	return code[:i], true
}

// Depth is the number of segments; a root has depth 1.
func Depth(code string) int {
	return len(Segments(code))
}

// IsDescendant reports whether code sits strictly below ancestor.
func IsDescendant(code, ancestor string) bool {
	return ancestor != "" && strings.HasPrefix(code, ancestor+Separator)
}

// InProject is the membership test for a project root: the root itself or
// any descendant. "10" is not in project "1".
func InProject(code, root string) bool {
	return code == root || IsDescendant(code, root)
}

// Compare orders codes segment by segment, numerically where both segments
// are integers, so "1.2" sorts before "1.10".
func Compare(a, b string) int {
	as, bs := Segments(a), Segments(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// Sort orders tasks by WBS in place, keeping ties stable.
func Sort(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Compare(tasks[i].WBS, tasks[j].WBS) < 0
	})
}
