package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
)

type userRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:64;uniqueIndex"`
	Name         string `gorm:"size:128"`
	PasswordHash string `gorm:"size:255"`
	IsAdmin      bool
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type taskRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	WBS         string `gorm:"column:wbs;type:varchar(64) COLLATE utf8mb4_bin;uniqueIndex"`
	Name        string `gorm:"size:255"`
	StartDate   string `gorm:"size:10"`
	EndDate     string `gorm:"size:10"`
	LeadID      *int64
	Lead        *userRow `gorm:"foreignKey:LeadID;constraint:OnDelete:SET NULL"`
	Progress    int
	Priority    string `gorm:"size:16"`
	Duration    int
	Description string `gorm:"type:text"`
	Color       string `gorm:"size:16"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskRow) TableName() string { return "tasks" }

type auditRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Actor     string    `gorm:"size:64"`
	Action    string    `gorm:"size:32"`
	Target    string    `gorm:"size:64"`
	Detail    string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit" }

func toModelUser(r userRow) model.User {
	return model.User{ID: r.ID, Username: r.Username, Name: r.Name, PasswordHash: r.PasswordHash, IsAdmin: r.IsAdmin, CreatedAt: r.CreatedAt}
}

func toModelTask(r taskRow) model.Task {
	t := model.Task{
		ID:          r.ID,
		WBS:         r.WBS,
		Name:        r.Name,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Progress:    r.Progress,
		Priority:    model.Priority(r.Priority),
		Duration:    r.Duration,
		Description: r.Description,
		Color:       r.Color,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LeadID != nil {
		ref := model.UserRef{ID: *r.LeadID}
		if r.Lead != nil {
			ref = toModelUser(*r.Lead).Ref()
		}
		t.Lead = &ref
	}
	return t
}

func toTaskRow(t model.Task) taskRow {
	r := taskRow{
		ID:          t.ID,
		WBS:         t.WBS,
		Name:        t.Name,
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
		Progress:    t.Progress,
		Priority:    string(t.Priority),
		Duration:    t.Duration,
		Description: t.Description,
		Color:       t.Color,
		CreatedAt:   t.CreatedAt,
	}
	if t.Lead != nil {
		id := t.Lead.ID
		r.LeadID = &id
	}
	return r
}

// GormStore implements store.TaskStore on MySQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewStore wraps a migrated connection from Init.
func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Ping reports readiness for health endpoints.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// escapeLike keeps % and _ in a project root literal.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *GormStore) SearchTasks(f model.TaskFilter) ([]model.Task, error) {
	q := s.db.Model(&taskRow{}).Preload("Lead")
	if f.WBS != "" {
		q = q.Where("wbs = ?", f.WBS)
	}
	if f.Root != "" {
		q = q.Where("(wbs = ? OR wbs LIKE ?)", f.Root, escapeLike(f.Root)+".%")
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	var rows []taskRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelTask(r))
	}
	return store.Finish(f, out), nil
}

func getTask(tx *gorm.DB, id int64) (model.Task, bool, error) {
	var r taskRow
	err := tx.Preload("Lead").First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return toModelTask(r), true, nil
}

func (s *GormStore) GetTask(id int64) (model.Task, bool, error) {
	return getTask(s.db, id)
}

func checkWritable(tx *gorm.DB, t model.Task) error {
	var n int64
	if err := tx.Model(&taskRow{}).Where("wbs = ? AND id <> ?", t.WBS, t.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", store.ErrConflict, t.WBS)
	}
	if t.Lead != nil {
		if err := tx.Model(&userRow{}).Where("id = ?", t.Lead.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: lead %d does not exist", store.ErrInvalidTask, t.Lead.ID)
		}
	}
	return nil
}

func (s *GormStore) CreateTask(t model.Task) (model.Task, error) {
	t = store.Normalize(t)
	if err := store.Validate(t); err != nil {
		return model.Task{}, err
	}
	var saved model.Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkWritable(tx, t); err != nil {
			return err
		}
		row := toTaskRow(t)
		if err := tx.Omit("Lead").Create(&row).Error; err != nil {
			return err
		}
		var err error
		saved, _, err = getTask(tx, row.ID)
		return err
	})
	return saved, err
}

func (s *GormStore) WriteTask(id int64, u model.TaskUpdate) (model.Task, error) {
	var saved model.Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cur, ok, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
		}
		next := store.Normalize(u.Apply(cur))
		if err := store.Validate(next); err != nil {
			return err
		}
		if err := checkWritable(tx, next); err != nil {
			return err
		}
		row := toTaskRow(next)
		// Select("*") so zero values such as progress 0 and a cleared lead are written.
		if err := tx.Model(&taskRow{ID: id}).Select("*").Omit("Lead", "CreatedAt").Updates(&row).Error; err != nil {
			return err
		}
		saved, _, err = getTask(tx, id)
		return err
	})
	return saved, err
}

func (s *GormStore) UnlinkTask(id int64) error {
	res := s.db.Delete(&taskRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateUser(u model.User) (model.User, error) {
	var n int64
	if err := s.db.Model(&userRow{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
		return model.User{}, err
	}
	if n > 0 {
		return model.User{}, fmt.Errorf("%w: %s", store.ErrUserExists, u.Username)
	}
	row := userRow{Username: u.Username, Name: u.Name, PasswordHash: u.PasswordHash, IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt}
	if err := s.db.Create(&row).Error; err != nil {
		return model.User{}, err
	}
	return toModelUser(row), nil
}

func (s *GormStore) GetUserByUsername(username string) (model.User, bool, error) {
	var row userRow
	err := s.db.Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return toModelUser(row), true, nil
}

func (s *GormStore) CountUsers() (int64, error) {
	var n int64
	err := s.db.Model(&userRow{}).Count(&n).Error
	return n, err
}

const displayName = "COALESCE(NULLIF(name, ''), username)"

func (s *GormStore) SearchUsers(name string) ([]model.UserRef, error) {
	q := s.db.Order("id")
	if name != "" {
		q = q.Where("LOWER("+displayName+") LIKE ?", "%"+escapeLike(strings.ToLower(name))+"%")
	}
	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.UserRef, 0, len(rows))
	for _, r := range rows {
		out = append(out, toModelUser(r).Ref())
	}
	return out, nil
}

func (s *GormStore) UserIDsByName(name string) ([]int64, error) {
	ids := []int64{}
	err := s.db.Model(&userRow{}).Where(displayName+" = ?", name).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) AppendAudit(e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	row := auditRow{ID: e.ID, Actor: e.Actor, Action: e.Action, Target: e.Target, Detail: e.Detail, Timestamp: e.Timestamp}
	return s.db.Create(&row).Error
}

func (s *GormStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	q := s.db.Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.AuditEntry, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = model.AuditEntry{ID: r.ID, Actor: r.Actor, Action: r.Action, Target: r.Target, Detail: r.Detail, Timestamp: r.Timestamp}
	}
	return out, nil
}

var _ store.TaskStore = (*GormStore)(nil)
