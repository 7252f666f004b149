//go:build consul

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"wbs-gantt/pkg/consul"
	"wbs-gantt/pkg/model"
)

const consulPrefix = "wbs-gantt/"

// ConsulStore keeps tasks as JSON documents in Consul KV so several
// controllers can share one task list. Each WBS code is owned through a
// wbs/<code> claim holding the task id; it is created with CAS index 0, so
// two controllers racing for one code cannot both win.
type ConsulStore struct {
	kv *consul.KV
	mu sync.Mutex
}

// NewConsulStore creates a Consul-backed store (requires build tag consul).
func NewConsulStore(addr string) (TaskStore, error) {
	kv, err := consul.New(addr, consulPrefix)
	if err != nil {
		return nil, err
	}
	log.Printf("consul store ready addr=%s prefix=%s", addr, consulPrefix)
	return &ConsulStore{kv: kv}, nil
}

// WatchTasks calls onChange when any controller writes a task.
func (s *ConsulStore) WatchTasks(ctx context.Context, onChange func()) {
	s.kv.Watch(ctx, "tasks/", onChange)
}

func (s *ConsulStore) allTasks() ([]model.Task, error) {
	docs, err := s.kv.List("tasks/")
	if err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(docs))
	for _, d := range docs {
		var t model.Task
		if err := json.Unmarshal(d, &t); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ConsulStore) allUsers() ([]model.User, error) {
	docs, err := s.kv.List("users/")
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(docs))
	for _, d := range docs {
		var u model.User
		if err := json.Unmarshal(d, &u); err == nil {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (s *ConsulStore) userByID(id int64) (model.User, bool, error) {
	var u model.User
	_, ok, err := s.kv.Get(fmt.Sprintf("users/%d", id), &u)
	return u, ok, err
}

func (s *ConsulStore) withLead(t model.Task) model.Task {
	if t.Lead == nil {
		return t
	}
	if u, ok, err := s.userByID(t.Lead.ID); err == nil && ok {
		ref := u.Ref()
		t.Lead = &ref
	}
	return t
}

func (s *ConsulStore) SearchTasks(f model.TaskFilter) ([]model.Task, error) {
	all, err := s.allTasks()
	if err != nil {
		return nil, err
	}
	out := []model.Task{}
	for _, t := range all {
		if Matches(f, t) {
			out = append(out, s.withLead(t))
		}
	}
	return Finish(f, out), nil
}

func (s *ConsulStore) GetTask(id int64) (model.Task, bool, error) {
	var t model.Task
	_, ok, err := s.kv.Get(fmt.Sprintf("tasks/%d", id), &t)
	if err != nil || !ok {
		return model.Task{}, false, err
	}
	return s.withLead(t), true, nil
}

func (s *ConsulStore) checkWritable(t model.Task) error {
	all, err := s.allTasks()
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID != t.ID && other.WBS == t.WBS {
			return fmt.Errorf("%w: %s", ErrConflict, t.WBS)
		}
	}
	if t.Lead != nil {
		_, ok, err := s.userByID(t.Lead.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: lead %d does not exist", ErrInvalidTask, t.Lead.ID)
		}
	}
	return nil
}

func (s *ConsulStore) CreateTask(t model.Task) (model.Task, error) {
	t = Normalize(t)
	if err := Validate(t); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(t); err != nil {
		return model.Task{}, err
	}
	id, err := s.kv.NextID("seq/tasks")
	if err != nil {
		return model.Task{}, err
	}
	t.ID = id
	if err := s.claimWBS(t.WBS, id); err != nil {
		return model.Task{}, err
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := s.kv.Put(fmt.Sprintf("tasks/%d", id), t); err != nil {
		s.releaseWBS(t.WBS, id)
		return model.Task{}, err
	}
	return s.withLead(t), nil
}

func wbsKey(code string) string {
	return "wbs/" + url.PathEscape(code)
}

// claimGrace is how long a claim is honored without a task document
// carrying its code, covering the gap between claim and task write.
const claimGrace = time.Minute

type wbsClaim struct {
	ID int64     `json:"id"`
	At time.Time `json:"at"`
}

// claimWBS makes id the owner of code. A claim older than claimGrace whose
// owner is gone or no longer carries code is taken over.
func (s *ConsulStore) claimWBS(code string, id int64) error {
	key := wbsKey(code)
	claim := wbsClaim{ID: id, At: time.Now()}
	ok, err := s.kv.CAS(key, claim, 0)
	if err != nil || ok {
		return err
	}
	var held wbsClaim
	index, found, err := s.kv.Get(key, &held)
	if err != nil {
		return err
	}
	if found && held.ID == id {
		return nil
	}
	if found {
		if time.Since(held.At) < claimGrace {
			return fmt.Errorf("%w: %s", ErrConflict, code)
		}
		var t model.Task
		_, live, err := s.kv.Get(fmt.Sprintf("tasks/%d", held.ID), &t)
		if err != nil {
			return err
		}
		if live && t.WBS == code {
			return fmt.Errorf("%w: %s", ErrConflict, code)
		}
		log.Printf("consul store: taking over stale wbs claim code=%s owner=%d id=%d", code, held.ID, id)
	}
	ok, err = s.kv.CAS(key, claim, index)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflict, code)
	}
	return nil
}

// releaseWBS drops the claim on code if id still owns it. A failure only
// leaves a stale claim, which claimWBS takes over after claimGrace.
func (s *ConsulStore) releaseWBS(code string, id int64) {
	key := wbsKey(code)
	var held wbsClaim
	index, found, err := s.kv.Get(key, &held)
	if err != nil || !found || held.ID != id {
		return
	}
	if _, err := s.kv.DeleteCAS(key, index); err != nil {
		log.Printf("consul store: release wbs claim failed code=%s id=%d err=%v", code, id, err)
	}
}

func (s *ConsulStore) WriteTask(id int64, u model.TaskUpdate) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("tasks/%d", id)
	var cur model.Task
	index, ok, err := s.kv.Get(key, &cur)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		return model.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	next := Normalize(u.Apply(cur))
	if err := Validate(next); err != nil {
		return model.Task{}, err
	}
	if err := s.checkWritable(next); err != nil {
		return model.Task{}, err
	}
	renamed := next.WBS != cur.WBS
	if renamed {
		if err := s.claimWBS(next.WBS, id); err != nil {
			return model.Task{}, err
		}
	}
	next.UpdatedAt = time.Now()
	swapped, err := s.kv.CAS(key, next, index)
	if err == nil && !swapped {
		err = fmt.Errorf("task %d changed concurrently: %w", id, ErrConflict)
	}
	if err != nil {
		if renamed {
			s.releaseWBS(next.WBS, id)
		}
		return model.Task{}, err
	}
	if renamed {
		s.releaseWBS(cur.WBS, id)
	}
	return s.withLead(next), nil
}

func (s *ConsulStore) UnlinkTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("tasks/%d", id)
	var cur model.Task
	_, ok, err := s.kv.Get(key, &cur)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err := s.kv.Delete(key); err != nil {
		return err
	}
	s.releaseWBS(cur.WBS, id)
	return nil
}

func (s *ConsulStore) CreateUser(u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok, err := s.GetUserByUsername(u.Username); err != nil {
		return model.User{}, err
	} else if ok {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
	}
	id, err := s.kv.NextID("seq/users")
	if err != nil {
		return model.User{}, err
	}
	u.ID = id
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	// User documents carry the hash; model.User hides it from JSON.
	if err := s.kv.Put(fmt.Sprintf("users/%d", id), storedUser{User: u, Hash: u.PasswordHash}); err != nil {
		return model.User{}, err
	}
	return u, nil
}

type storedUser struct {
	model.User
	Hash string `json:"password_hash"`
}

func (s *ConsulStore) GetUserByUsername(username string) (model.User, bool, error) {
	docs, err := s.kv.List("users/")
	if err != nil {
		return model.User{}, false, err
	}
	for _, d := range docs {
		var su storedUser
		if err := json.Unmarshal(d, &su); err == nil && su.Username == username {
			su.User.PasswordHash = su.Hash
			return su.User, true, nil
		}
	}
	return model.User{}, false, nil
}

func (s *ConsulStore) CountUsers() (int64, error) {
	users, err := s.allUsers()
	return int64(len(users)), err
}

func (s *ConsulStore) SearchUsers(name string) ([]model.UserRef, error) {
	users, err := s.allUsers()
	if err != nil {
		return nil, err
	}
	out := []model.UserRef{}
	for _, u := range users {
		ref := u.Ref()
		if name == "" || strings.Contains(strings.ToLower(ref.Name), strings.ToLower(name)) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *ConsulStore) UserIDsByName(name string) ([]int64, error) {
	users, err := s.allUsers()
	if err != nil {
		return nil, err
	}
	out := []int64{}
	for _, u := range users {
		if u.Ref().Name == name {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (s *ConsulStore) AppendAudit(entry model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return s.kv.Put(fmt.Sprintf("audit/%020d-%s", entry.Timestamp.UnixNano(), entry.ID), entry)
}

func (s *ConsulStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	docs, err := s.kv.List("audit/")
	if err != nil {
		return nil, err
	}
	out := []model.AuditEntry{}
	for _, d := range docs {
		var e model.AuditEntry
		if err := json.Unmarshal(d, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
