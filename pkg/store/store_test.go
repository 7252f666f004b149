package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/model"
)

// extraBackends lets build-tagged test files add stores to the shared suite.
var extraBackends []func(t *testing.T) (string, TaskStore)

func backends(t *testing.T) map[string]TaskStore {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "gantt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	out := map[string]TaskStore{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
	for _, open := range extraBackends {
		name, st := open(t)
		out[name] = st
	}
	return out
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func seed(t *testing.T, st TaskStore) []model.Task {
	t.Helper()
	var out []model.Task
	for _, tk := range []model.Task{
		{WBS: "1", Name: "Planning", StartDate: "2024-01-01", EndDate: "2024-01-05", Progress: 100, Priority: model.PriorityHigh},
		{WBS: "1.10", Name: "Late child", StartDate: "2024-01-06", EndDate: "2024-01-07"},
		{WBS: "1.2", Name: "Design", StartDate: "2024-01-06", EndDate: "2024-01-15"},
		{WBS: "10", Name: "Other", StartDate: "2024-02-01", EndDate: "2024-02-05"},
		{WBS: "10.1", Name: "Other child", StartDate: "2024-02-01", EndDate: "2024-02-02"},
	} {
		saved, err := st.CreateTask(tk)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func TestTaskStoreBackends(t *testing.T) {
	for name, st := range backends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			created := seed(t, st)
			assert.Equal(t, 5, created[0].Duration)
			assert.Equal(t, model.PriorityMedium, created[1].Priority)
			assert.Equal(t, model.DefaultColor, created[1].Color)

			t.Run("search by root respects segment boundary", func(t *testing.T) {
				got, err := st.SearchTasks(model.TaskFilter{Root: "1"})
				require.NoError(t, err)
				var codes []string
				for _, tk := range got {
					codes = append(codes, tk.WBS)
				}
				assert.Equal(t, []string{"1", "1.2", "1.10"}, codes)

				for _, code := range []string{"a", "a.1", "A", "A.1"} {
					_, err := st.CreateTask(model.Task{WBS: code, Name: "case " + code, StartDate: "2024-03-01", EndDate: "2024-03-02"})
					require.NoError(t, err)
				}
				got, err = st.SearchTasks(model.TaskFilter{Root: "a"})
				require.NoError(t, err)
				codes = codes[:0]
				for _, tk := range got {
					codes = append(codes, tk.WBS)
				}
				assert.Equal(t, []string{"a", "a.1"}, codes)
			})

			t.Run("exact wbs and limit", func(t *testing.T) {
				got, err := st.SearchTasks(model.TaskFilter{WBS: "10"})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "Other", got[0].Name)

				got, err = st.SearchTasks(model.TaskFilter{Limit: 2})
				require.NoError(t, err)
				assert.Len(t, got, 2)
			})

			t.Run("write then refetch round trips", func(t *testing.T) {
				id := created[2].ID
				upd := model.TaskUpdate{Name: strPtr("Design v2"), Progress: intPtr(40), EndDate: strPtr("2024-01-20")}
				for i := 0; i < 2; i++ {
					_, err := st.WriteTask(id, upd)
					require.NoError(t, err)
				}
				got, ok, err := st.GetTask(id)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "Design v2", got.Name)
				assert.Equal(t, 40, got.Progress)
				assert.Equal(t, 15, got.Duration)
			})

			t.Run("invalid writes are rejected", func(t *testing.T) {
				id := created[2].ID
				_, err := st.WriteTask(id, model.TaskUpdate{EndDate: strPtr("2023-12-31")})
				assert.ErrorIs(t, err, ErrInvalidTask)
				_, err = st.WriteTask(id, model.TaskUpdate{Progress: intPtr(101)})
				assert.ErrorIs(t, err, ErrInvalidTask)
				_, err = st.WriteTask(id, model.TaskUpdate{StartDate: strPtr("2024-13-01")})
				assert.ErrorIs(t, err, ErrInvalidTask)
				_, err = st.WriteTask(id, model.TaskUpdate{WBS: strPtr("10")})
				assert.ErrorIs(t, err, ErrConflict)
				_, err = st.WriteTask(9999, model.TaskUpdate{Name: strPtr("x")})
				assert.ErrorIs(t, err, ErrNotFound)
				bad := model.Priority("whenever")
				_, err = st.WriteTask(id, model.TaskUpdate{Priority: &bad})
				assert.ErrorIs(t, err, ErrInvalidTask)
			})

			t.Run("lead assignment resolves display name", func(t *testing.T) {
				u, err := st.CreateUser(model.User{Username: "balaji", Name: "Balaji"})
				require.NoError(t, err)
				_, err = st.CreateUser(model.User{Username: "balaji"})
				assert.ErrorIs(t, err, ErrUserExists)

				ids, err := st.UserIDsByName("Balaji")
				require.NoError(t, err)
				assert.Equal(t, []int64{u.ID}, ids)

				refs, err := st.SearchUsers("bal")
				require.NoError(t, err)
				require.Len(t, refs, 1)
				assert.Equal(t, "Balaji", refs[0].Name)

				got, err := st.WriteTask(created[1].ID, model.TaskUpdate{LeadSet: true, LeadID: &u.ID})
				require.NoError(t, err)
				require.NotNil(t, got.Lead)
				assert.Equal(t, "Balaji", got.Lead.Name)

				got, err = st.WriteTask(created[1].ID, model.TaskUpdate{LeadSet: true})
				require.NoError(t, err)
				assert.Nil(t, got.Lead)
				assert.Equal(t, model.Unassigned, got.LeadName())

				missing := int64(4242)
				_, err = st.WriteTask(created[1].ID, model.TaskUpdate{LeadSet: true, LeadID: &missing})
				assert.ErrorIs(t, err, ErrInvalidTask)
			})

			t.Run("unlink", func(t *testing.T) {
				require.NoError(t, st.UnlinkTask(created[4].ID))
				_, ok, err := st.GetTask(created[4].ID)
				require.NoError(t, err)
				assert.False(t, ok)
				assert.ErrorIs(t, st.UnlinkTask(created[4].ID), ErrNotFound)
			})

			t.Run("audit keeps the newest entries", func(t *testing.T) {
				for _, a := range []string{"create", "write", "unlink"} {
					require.NoError(t, st.AppendAudit(model.AuditEntry{ID: a, Actor: "test", Action: a, Target: "1"}))
				}
				entries, err := st.ListAudit(2)
				require.NoError(t, err)
				require.Len(t, entries, 2)
				assert.Equal(t, "write", entries[0].Action)
				assert.Equal(t, "unlink", entries[1].Action)
			})
		})
	}
}

func TestCreateTaskValidation(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.CreateTask(model.Task{Name: "no code", StartDate: "2024-01-01", EndDate: "2024-01-01"})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = st.CreateTask(model.Task{WBS: "1", StartDate: "2024-01-01", EndDate: "2024-01-01"})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = st.CreateTask(model.Task{WBS: "1", Name: "x", StartDate: "2024-01-02", EndDate: "2024-01-01"})
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestFinishDropsCaseFoldedRows(t *testing.T) {
	rows := []model.Task{{ID: 1, WBS: "A.1"}, {ID: 2, WBS: "a.1"}, {ID: 3, WBS: "a"}, {ID: 4, WBS: "A"}}
	got := Finish(model.TaskFilter{Root: "a"}, rows)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].WBS)
	assert.Equal(t, "a.1", got[1].WBS)

	got = Finish(model.TaskFilter{WBS: "A"}, []model.Task{{ID: 1, WBS: "a"}, {ID: 2, WBS: "A"}})
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}
