package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
)

func TestRunOnceReportsChanges(t *testing.T) {
	st := store.NewMemoryStore()
	late, err := st.CreateTask(model.Task{WBS: "1", Name: "Late", StartDate: "2024-01-01", EndDate: "2024-01-10", Progress: 50})
	require.NoError(t, err)
	_, err = st.CreateTask(model.Task{WBS: "1.1", Name: "Done", StartDate: "2024-01-01", EndDate: "2024-01-05", Progress: 100})
	require.NoError(t, err)
	_, err = st.CreateTask(model.Task{WBS: "1.2", Name: "Future", StartDate: "2024-01-01", EndDate: "2024-03-01"})
	require.NoError(t, err)

	var calls [][]DelayedTask
	now := func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	s := New(st, func(d []DelayedTask) { calls = append(calls, d) }, now)

	delayed, err := s.RunOnce()
	require.NoError(t, err)
	require.Len(t, delayed, 1)
	assert.Equal(t, late.ID, delayed[0].ID)
	assert.Equal(t, model.Unassigned, delayed[0].Lead)
	require.Len(t, calls, 1)

	_, err = s.RunOnce()
	require.NoError(t, err)
	assert.Len(t, calls, 1, "unchanged set is not re-sent")

	p := 100
	_, err = st.WriteTask(late.ID, model.TaskUpdate{Progress: &p})
	require.NoError(t, err)
	delayed, err = s.RunOnce()
	require.NoError(t, err)
	assert.Empty(t, delayed)
	assert.Len(t, calls, 2)

	audit, err := st.ListAudit(0)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(store.NewMemoryStore(), nil, nil)
	assert.Error(t, s.Start(context.Background(), "every tuesday"))
}

func TestStartRunsImmediately(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.CreateTask(model.Task{WBS: "1", Name: "Late", StartDate: "2020-01-01", EndDate: "2020-01-02"})
	require.NoError(t, err)
	got := make(chan int, 1)
	s := New(st, func(d []DelayedTask) { got <- len(d) }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, "@every 1h"))
	select {
	case n := <-got:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run")
	}
}
