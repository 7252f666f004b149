// Package view holds the single mutable viewer session: the loaded task set,
// the current project and selection. Views are re-derived from it on every
// change through the pure functions in pkg/wbs.
package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

var (
	// ErrStale is returned when a newer load superseded the response.
	ErrStale       = errors.New("view: response superseded by a newer load")
	ErrUnknownTask = errors.New("view: task not loaded")
	ErrUnknownUser = errors.New("view: no user with that name")
	ErrNoProject   = errors.New("view: no project selected")
	ErrBadProgress = errors.New("view: progress must be between 0 and 100")
)

// Remote is the slice of the controller API the session needs.
// *client.Client satisfies it.
type Remote interface {
	SearchTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	WriteTask(ctx context.Context, id int64, u model.TaskUpdate) (model.Task, error)
	UnlinkTask(ctx context.Context, id int64) error
	CreateTask(ctx context.Context, req api.CreateTaskRequest) (model.Task, error)
	UserIDs(ctx context.Context, name string) ([]int64, error)
	SearchUsers(ctx context.Context, name string) ([]model.UserRef, error)
}

// Session is owned by one shell. All methods are safe to call from
// concurrent goroutines; remote calls run without the lock held.
type Session struct {
	remote Remote
	now    func() time.Time

	mu       sync.Mutex
	gen      uint64
	all      []model.Task
	projects []model.Project
	root     string
	tasks    []model.Task
	selected int64
	mode     Mode
}

// NewSession returns an empty session. A nil now uses time.Now.
func NewSession(remote Remote, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{remote: remote, now: now, mode: ModeDay}
}

func (s *Session) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// LoadProjects fetches every task, rebuilds the project selector and keeps
// the current project if it still exists, else falls back to the first one.
func (s *Session) LoadProjects(ctx context.Context) error {
	gen := s.begin()
	all, err := s.remote.SearchTasks(ctx, model.TaskFilter{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.all = all
	s.projects = wbs.ExtractProjects(all)
	if !s.hasProject(s.root) {
		s.root = ""
		if len(s.projects) > 0 {
			s.root = s.projects[0].Root
		}
	}
	s.tasks = wbs.FilterByProject(s.root, all)
	s.dropSelectionIfGone()
	return nil
}

// Refresh reloads everything, keeping project and selection when possible.
func (s *Session) Refresh(ctx context.Context) error {
	return s.LoadProjects(ctx)
}

// SwitchProject fetches the tasks of root. A switch issued later wins: the
// earlier response gets ErrStale and leaves the session untouched.
func (s *Session) SwitchProject(ctx context.Context, root string) error {
	gen := s.begin()
	tasks, err := s.remote.SearchTasks(ctx, model.TaskFilter{Root: root})
	if err != nil {
		return fmt.Errorf("load project %s: %w", root, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.root = root
	s.tasks = tasks
	s.mergeProject(root, tasks)
	s.dropSelectionIfGone()
	return nil
}

// mergeProject replaces the cached tasks of root in the wholesale set.
func (s *Session) mergeProject(root string, tasks []model.Task) {
	kept := make([]model.Task, 0, len(s.all)+len(tasks))
	for _, t := range s.all {
		if !wbs.InProject(t.WBS, root) {
			kept = append(kept, t)
		}
	}
	s.all = append(kept, tasks...)
	wbs.Sort(s.all)
	s.projects = wbs.ExtractProjects(s.all)
}

func (s *Session) hasProject(root string) bool {
	if root == "" {
		return false
	}
	for _, p := range s.projects {
		if p.Root == root {
			return true
		}
	}
	return false
}

func (s *Session) dropSelectionIfGone() {
	if s.selected != 0 && indexOf(s.tasks, s.selected) < 0 {
		s.selected = 0
	}
}

func indexOf(tasks []model.Task, id int64) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Select marks a task as current. An id outside the loaded project is
// logged and ignored.
func (s *Session) Select(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.tasks, id) < 0 {
		log.Printf("view: select ignored, task not loaded id=%d", id)
		return false
	}
	s.selected = id
	return true
}

func (s *Session) Selected() (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.tasks, s.selected); i >= 0 {
		return s.tasks[i], true
	}
	return model.Task{}, false
}

func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

func (s *Session) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Project(nil), s.projects...)
}

// Tasks returns the loaded tasks of the current project.
func (s *Session) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

// Edit writes u to the store. The change is shown locally at once and
// reverted if the write fails; on success the stored task replaces it.
func (s *Session) Edit(ctx context.Context, id int64, u model.TaskUpdate) (model.Task, error) {
	return s.edit(ctx, id, u, u.Apply)
}

func (s *Session) edit(ctx context.Context, id int64, u model.TaskUpdate, local func(model.Task) model.Task) (model.Task, error) {
	if u.Empty() {
		return model.Task{}, fmt.Errorf("edit task %d: nothing to write", id)
	}
	s.mu.Lock()
	i := indexOf(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		log.Printf("view: edit ignored, task not loaded id=%d", id)
		return model.Task{}, ErrUnknownTask
	}
	before := s.tasks[i]
	s.replace(local(before))
	s.mu.Unlock()

	saved, err := s.remote.WriteTask(ctx, id, u)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.replace(before)
		log.Printf("view: write failed, reverted id=%d fields=%v err=%v", id, u.Fields(), err)
		return before, fmt.Errorf("write task %d: %w", id, err)
	}
	s.replace(saved)
	if u.WBS != nil {
		s.projects = wbs.ExtractProjects(s.all)
	}
	return saved, nil
}

// replace swaps the cached copy of t in both task sets. Missing entries
// are left alone since a reload may have run in between.
func (s *Session) replace(t model.Task) {
	if i := indexOf(s.tasks, t.ID); i >= 0 {
		s.tasks[i] = t
	}
	if i := indexOf(s.all, t.ID); i >= 0 {
		s.all[i] = t
	}
}

func (s *Session) Rename(ctx context.Context, id int64, name string) (model.Task, error) {
	return s.Edit(ctx, id, model.TaskUpdate{Name: &name})
}

// MoveDates handles a date drag. Spans that fail validation are rejected
// before any write.
func (s *Session) MoveDates(ctx context.Context, id int64, start, end string) (model.Task, error) {
	if err := wbs.ValidateSpan(start, end); err != nil {
		return model.Task{}, fmt.Errorf("move task %d: %w", id, err)
	}
	return s.Edit(ctx, id, model.TaskUpdate{StartDate: &start, EndDate: &end})
}

// SetProgress handles a progress drag.
func (s *Session) SetProgress(ctx context.Context, id int64, progress int) (model.Task, error) {
	if progress < 0 || progress > 100 {
		return model.Task{}, ErrBadProgress
	}
	return s.Edit(ctx, id, model.TaskUpdate{Progress: &progress})
}

// SetLead assigns the user with the given display name. An empty name or
// "Unassigned" clears the lead.
func (s *Session) SetLead(ctx context.Context, id int64, name string) (model.Task, error) {
	u := model.TaskUpdate{LeadSet: true}
	if name == "" || name == model.Unassigned {
		return s.edit(ctx, id, u, u.Apply)
	}
	ids, err := s.remote.UserIDs(ctx, name)
	if err != nil {
		return model.Task{}, fmt.Errorf("resolve lead %q: %w", name, err)
	}
	if len(ids) == 0 {
		return model.Task{}, fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	u.LeadID = &ids[0]
	return s.edit(ctx, id, u, func(t model.Task) model.Task {
		t.Lead = &model.UserRef{ID: ids[0], Name: name}
		return t
	})
}

// LeadChoices lists the assignee picker entries, "Unassigned" first.
func (s *Session) LeadChoices(ctx context.Context) ([]string, error) {
	users, err := s.remote.SearchUsers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := []string{model.Unassigned}
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out, nil
}

// Delete unlinks the task and reloads the whole session.
func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.remote.UnlinkTask(ctx, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return s.Refresh(ctx)
}

// NewTask creates the next direct child of the current project root.
func (s *Session) NewTask(ctx context.Context, name, start, end string) (model.Task, error) {
	s.mu.Lock()
	root := s.root
	code := wbs.NextChildWBS(root, s.all)
	s.mu.Unlock()
	if root == "" {
		return model.Task{}, ErrNoProject
	}
	t, err := s.remote.CreateTask(ctx, api.CreateTaskRequest{WBS: code, Name: name, StartDate: start, EndDate: end})
	if err != nil {
		return model.Task{}, fmt.Errorf("create task %s: %w", code, err)
	}
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		return t, err
	}
	return t, nil
}

// Diagnostics counts what the derived views had to leave out.
type Diagnostics struct {
	Loaded   int                 `json:"loaded"`
	Unrooted int                 `json:"unrooted"`
	Orphans  []string            `json:"orphan_roots,omitempty"`
	Skipped  []model.SkippedTask `json:"skipped,omitempty"`
}

func (s *Session) Diagnostics() Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Diagnostics{Loaded: len(s.all)}
	groups := wbs.GroupByProjectRoot(s.all)
	d.Unrooted = len(groups.ByRoot[wbs.UnrootedKey])
	for _, key := range groups.Keys {
		if key != wbs.UnrootedKey && !s.hasProject(key) {
			d.Orphans = append(d.Orphans, key)
		}
	}
	d.Skipped = wbs.TimelineBars(s.tasks, s.now()).Skipped
	return d
}

// Model snapshots the session into a renderable view-model.
func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Build(s.projects, s.root, s.tasks, s.selected, s.mode, s.now())
}
