package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wbs-gantt/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	is_admin INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wbs TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	start_date TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	lead_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT 'medium',
	duration INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit(
	id TEXT PRIMARY KEY,
	actor TEXT, action TEXT, target TEXT, detail TEXT,
	ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit(ts);`

const taskColumns = `t.id, t.wbs, t.name, t.start_date, t.end_date, t.lead_id, COALESCE(NULLIF(u.name, ''), u.username, ''),
	t.progress, t.priority, t.duration, t.description, t.color, t.created_at, t.updated_at`

// SQLiteStore keeps tasks in a single-file database for single-node
// deployments.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("sqlite store ready path=%s", path)
	return &SQLiteStore{db: db, timeout: 5 * time.Second}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping reports readiness for health endpoints.
func (s *SQLiteStore) Ping() error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t                model.Task
		leadID           sql.NullInt64
		leadName         string
		priority         string
		created, updated int64
	)
	err := r.Scan(&t.ID, &t.WBS, &t.Name, &t.StartDate, &t.EndDate, &leadID, &leadName,
		&t.Progress, &priority, &t.Duration, &t.Description, &t.Color, &created, &updated)
	if err != nil {
		return model.Task{}, err
	}
	if leadID.Valid {
		t.Lead = &model.UserRef{ID: leadID.Int64, Name: leadName}
	}
	t.Priority = model.Priority(priority)
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return t, nil
}

// likePrefix escapes LIKE wildcards so a root such as "1_" stays literal.
func likePrefix(root string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(root) + ".%"
}

func (s *SQLiteStore) SearchTasks(f model.TaskFilter) ([]model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks t LEFT JOIN users u ON u.id = t.lead_id WHERE 1=1`
	var args []interface{}
	if f.WBS != "" {
		q += ` AND t.wbs = ?`
		args = append(args, f.WBS)
	}
	if f.Root != "" {
		q += ` AND (t.wbs = ? OR t.wbs LIKE ? ESCAPE '\')`
		args = append(args, f.Root, likePrefix(f.Root))
	}
	if len(f.IDs) > 0 {
		q += ` AND t.id IN (?` + strings.Repeat(",?", len(f.IDs)-1) + `)`
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	ctx, cancel := s.ctx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Finish(f, out), nil
}

func (s *SQLiteStore) GetTask(id int64) (model.Task, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return getTask(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getTask(ctx context.Context, q queryer, id int64) (model.Task, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t LEFT JOIN users u ON u.id = t.lead_id WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return t, true, nil
}

func checkWritable(ctx context.Context, tx *sql.Tx, t model.Task) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE wbs = ? AND id <> ?`, t.WBS, t.ID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrConflict, t.WBS)
	}
	if t.Lead != nil {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, t.Lead.ID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: lead %d does not exist", ErrInvalidTask, t.Lead.ID)
		}
	}
	return nil
}

func leadArg(t model.Task) interface{} {
	if t.Lead == nil {
		return nil
	}
	return t.Lead.ID
}

func (s *SQLiteStore) CreateTask(t model.Task) (model.Task, error) {
	t = Normalize(t)
	if err := Validate(t); err != nil {
		return model.Task{}, err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer tx.Rollback() //nolint:errcheck
	if err := checkWritable(ctx, tx, t); err != nil {
		return model.Task{}, err
	}
	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(wbs, name, start_date, end_date, lead_id, progress, priority, duration, description, color, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.WBS, t.Name, t.StartDate, t.EndDate, leadArg(t), t.Progress, string(t.Priority), t.Duration, t.Description, t.Color, now, now)
	if err != nil {
		return model.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}
	saved, _, err := getTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	return saved, tx.Commit()
}

func (s *SQLiteStore) WriteTask(id int64, u model.TaskUpdate) (model.Task, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer tx.Rollback() //nolint:errcheck
	cur, ok, err := getTask(ctx, tx, id)
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
	if err := checkWritable(ctx, tx, next); err != nil {
		return model.Task{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tasks SET wbs=?, name=?, start_date=?, end_date=?, lead_id=?, progress=?, priority=?, duration=?, description=?, color=?, updated_at=? WHERE id=?`,
		next.WBS, next.Name, next.StartDate, next.EndDate, leadArg(next), next.Progress, string(next.Priority), next.Duration, next.Description, next.Color, time.Now().Unix(), id)
	if err != nil {
		return model.Task{}, err
	}
	saved, _, err := getTask(ctx, tx, id)
	if err != nil {
		return model.Task{}, err
	}
	return saved, tx.Commit()
}

func (s *SQLiteStore) UnlinkTask(id int64) error {
	ctx, cancel := s.ctx()
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CreateUser(u model.User) (model.User, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, u.Username).Scan(&n); err != nil {
		return model.User{}, err
	}
	if n > 0 {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserExists, u.Username)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username, name, password_hash, is_admin, created_at) VALUES(?,?,?,?,?)`,
		u.Username, u.Name, u.PasswordHash, u.IsAdmin, u.CreatedAt.Unix())
	if err != nil {
		return model.User{}, err
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

func (s *SQLiteStore) GetUserByUsername(username string) (model.User, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var (
		u       model.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, username, name, password_hash, is_admin, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.IsAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, true, nil
}

func (s *SQLiteStore) CountUsers() (int64, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

const displayName = `COALESCE(NULLIF(name, ''), username)`

func (s *SQLiteStore) SearchUsers(name string) ([]model.UserRef, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, `+displayName+` FROM users WHERE instr(lower(`+displayName+`), lower(?)) > 0 ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.UserRef{}
	for rows.Next() {
		var ref model.UserRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UserIDsByName(name string) ([]int64, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE `+displayName+` = ? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendAudit(e model.AuditEntry) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit(id, actor, action, target, detail, ts) VALUES(?,?,?,?,?,?)`,
		e.ID, e.Actor, e.Action, e.Target, e.Detail, e.Timestamp.UnixNano())
	return err
}

func (s *SQLiteStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, actor, action, target, detail, ts FROM (SELECT rowid AS seq, * FROM audit ORDER BY ts DESC, seq DESC LIMIT ?) ORDER BY ts, seq`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditEntry{}
	for rows.Next() {
		var (
			e  model.AuditEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
