// Package sweep periodically looks for tasks that have run past their end
// date and tells viewers about them.
package sweep

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
	"wbs-gantt/pkg/wbs"
)

// DelayedTask is the notification payload for one overdue task.
type DelayedTask struct {
	ID       int64  `json:"id"`
	WBS      string `json:"wbs"`
	Name     string `json:"name"`
	EndDate  string `json:"end_date"`
	Progress int    `json:"progress"`
	Lead     string `json:"lead"`
}

// Notify receives the full delayed set whenever it changes.
type Notify func(delayed []DelayedTask)

// Sweeper runs the delayed-task check on a cron schedule.
type Sweeper struct {
	st     store.TaskStore
	notify Notify
	now    func() time.Time

	mu   sync.Mutex
	last string // fingerprint of the previously reported set
}

func New(st store.TaskStore, notify Notify, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{st: st, notify: notify, now: now}
}

// RunOnce checks the store and notifies when the delayed set differs from
// the last run. It returns the current delayed set.
func (s *Sweeper) RunOnce() ([]DelayedTask, error) {
	all, err := s.st.SearchTasks(model.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("sweep search: %w", err)
	}
	today := s.now()
	delayed := []DelayedTask{}
	for _, t := range all {
		if !wbs.IsDelayed(t, today) {
			continue
		}
		delayed = append(delayed, DelayedTask{ID: t.ID, WBS: t.WBS, Name: t.Name, EndDate: t.EndDate, Progress: t.Progress, Lead: t.LeadName()})
	}
	fp := fingerprint(delayed)

	s.mu.Lock()
	changed := fp != s.last
	s.last = fp
	s.mu.Unlock()
	if !changed {
		return delayed, nil
	}

	log.Printf("sweep delayed=%d", len(delayed))
	if err := s.st.AppendAudit(model.AuditEntry{
		ID:     uuid.NewString(),
		Actor:  "sweep",
		Action: "delayed",
		Target: "tasks",
		Detail: fmt.Sprintf("%d delayed tasks", len(delayed)),
	}); err != nil {
		log.Printf("sweep audit failed: %v", err)
	}
	if s.notify != nil {
		s.notify(delayed)
	}
	return delayed, nil
}

func fingerprint(tasks []DelayedTask) string {
	keys := make([]string, 0, len(tasks))
	for _, t := range tasks {
		keys = append(keys, fmt.Sprintf("%d@%s", t.ID, t.EndDate))
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// Start schedules RunOnce on spec (standard 5-field cron or @every) and
// runs it once immediately. The schedule stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	c := rcron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(); err != nil {
			log.Printf("sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	c.Start()
	log.Printf("sweep scheduled spec=%q", spec)

	go func() {
		if _, err := s.RunOnce(); err != nil {
			log.Printf("sweep failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
