package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"wbs-gantt/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev/demo and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[int64]model.Task
	users    map[int64]model.User
	audit    []model.AuditEntry
	nextTask int64
	nextUser int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[int64]model.Task),
		users: make(map[int64]model.User),
	}
}

func (m *MemoryStore) SearchTasks(f model.TaskFilter) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Task{}
	for _, t := range m.tasks {
		if Matches(f, t) {
			out = append(out, m.withLead(t))
		}
	}
	return Finish(f, out), nil
}

func (m *MemoryStore) GetTask(id int64) (model.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, false, nil
	}
	return m.withLead(t), true, nil
}

func (m *MemoryStore) CreateTask(t model.Task) (model.Task, error) {
	t = Normalize(t)
	if err := Validate(t); err != nil {
		return model.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wbsTaken(t.WBS, 0) {
		return model.Task{}, fmt.Errorf("%w: %s", ErrConflict, t.WBS)
	}
	if err := m.checkLead(t.Lead); err != nil {
		return model.Task{}, err
	}
	m.nextTask++
	t.ID = m.nextTask
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tasks[t.ID] = t
	return m.withLead(t), nil
}

func (m *MemoryStore) WriteTask(id int64, u model.TaskUpdate) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	next := Normalize(u.Apply(cur))
	if err := Validate(next); err != nil {
		return model.Task{}, err
	}
	if next.WBS != cur.WBS && m.wbsTaken(next.WBS, id) {
		return model.Task{}, fmt.Errorf("%w: %s", ErrConflict, next.WBS)
	}
	if err := m.checkLead(next.Lead); err != nil {
		return model.Task{}, err
	}
	next.UpdatedAt = time.Now()
	m.tasks[id] = next
	return m.withLead(next), nil
}

func (m *MemoryStore) UnlinkTask(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryStore) wbsTaken(code string, except int64) bool {
	for id, t := range m.tasks {
		if id != except && t.WBS == code {
			return true
		}
	}
	return false
}

func (m *MemoryStore) checkLead(lead *model.UserRef) error {
	if lead == nil {
		return nil
	}
	if _, ok := m.users[lead.ID]; !ok {
		return fmt.Errorf("%w: lead %d does not exist", ErrInvalidTask, lead.ID)
	}
	return nil
}

// withLead refreshes the lead display name from the directory.
func (m *MemoryStore) withLead(t model.Task) model.Task {
	if t.Lead == nil {
		return t
	}
	if u, ok := m.users[t.Lead.ID]; ok {
		ref := u.Ref()
		t.Lead = &ref
	}
	return t
}

func (m *MemoryStore) CreateUser(u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return model.User{}, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		}
	}
	m.nextUser++
	u.ID = m.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(username string) (model.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (m *MemoryStore) CountUsers() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MemoryStore) SearchUsers(name string) ([]model.UserRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.UserRef{}
	for id := int64(1); id <= m.nextUser; id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		ref := u.Ref()
		if name == "" || strings.Contains(strings.ToLower(ref.Name), strings.ToLower(name)) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (m *MemoryStore) UserIDsByName(name string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []int64{}
	for id := int64(1); id <= m.nextUser; id++ {
		if u, ok := m.users[id]; ok && u.Ref().Name == name {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendAudit(entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]model.AuditEntry, 0, limit)
	start := len(m.audit) - limit
	for i := start; i < len(m.audit); i++ {
		out = append(out, m.audit[i])
	}
	return out, nil
}
