package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidTask = errors.New("invalid task")
	ErrConflict    = errors.New("wbs already in use")
	ErrUserExists  = errors.New("username already taken")
)

// TaskStore is the persistence layer for tasks, the user directory and the
// audit trail. Memory, sqlite, MySQL (pkg/db) and Consul (pkg/consul)
// implementations share the validation in this package.
type TaskStore interface {
	SearchTasks(filter model.TaskFilter) ([]model.Task, error)
	GetTask(id int64) (model.Task, bool, error)
	CreateTask(model.Task) (model.Task, error)
	WriteTask(id int64, u model.TaskUpdate) (model.Task, error)
	UnlinkTask(id int64) error

	CreateUser(model.User) (model.User, error)
	GetUserByUsername(username string) (model.User, bool, error)
	CountUsers() (int64, error)
	// SearchUsers lists directory entries whose display name contains
	// name; an empty name lists everyone.
	SearchUsers(name string) ([]model.UserRef, error)
	// UserIDsByName resolves an exact display name to user ids.
	UserIDsByName(name string) ([]int64, error)

	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() TaskStore {
	return NewMemoryStore()
}

// Normalize fills defaults and derived fields before a task is persisted.
func Normalize(t model.Task) model.Task {
	t.WBS = strings.TrimSpace(t.WBS)
	t.Name = strings.TrimSpace(t.Name)
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Color == "" {
		t.Color = model.DefaultColor
	}
	t.Duration = wbs.DurationDays(t.StartDate, t.EndDate)
	return t
}

// Validate enforces the write-time constraints shared by every backend.
func Validate(t model.Task) error {
	switch {
	case t.WBS == "":
		return fmt.Errorf("%w: wbs is required", ErrInvalidTask)
	case t.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	case t.Progress < 0 || t.Progress > 100:
		return fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidTask)
	case !t.Priority.IsValid():
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	if err := wbs.ValidateSpan(t.StartDate, t.EndDate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return nil
}

// Matches applies a filter to a single task.
func Matches(f model.TaskFilter, t model.Task) bool {
	if f.WBS != "" && t.WBS != f.WBS {
		return false
	}
	if f.Root != "" && !wbs.InProject(t.WBS, f.Root) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Finish drops rows that fail Matches, orders the rest by WBS and applies
// the filter limit. SQL backends prefilter with LIKE, which folds case, so
// the exact segment test is repeated here.
func Finish(f model.TaskFilter, tasks []model.Task) []model.Task {
	kept := tasks[:0]
	for _, t := range tasks {
		if Matches(f, t) {
			kept = append(kept, t)
		}
	}
	tasks = kept
	wbs.Sort(tasks)
	if f.Limit > 0 && len(tasks) > f.Limit {
		tasks = tasks[:f.Limit]
	}
	return tasks
}

func sortUsers(users []model.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}
