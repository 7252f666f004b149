package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
)

func newServer(t *testing.T, opts api.Options) (*Client, *store.MemoryStore, *api.Server) {
	t.Helper()
	st := store.NewMemoryStore()
	mux := http.NewServeMux()
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }
	}
	srv := api.RegisterRoutes(mux, st, nil, opts)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return New(ts.URL, opts.Token, ts.Client()), st, srv
}

func TestClientRoundTrip(t *testing.T) {
	c, st, _ := newServer(t, api.Options{})
	ctx := context.Background()

	res, err := c.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Tasks)

	projects, err := c.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	tasks, err := c.SearchTasks(ctx, model.TaskFilter{Root: "1"})
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	next, err := c.NextWBS(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1.5", next)

	u, err := st.CreateUser(model.User{Username: "li", Name: "Li Wei"})
	require.NoError(t, err)
	ids, err := c.UserIDs(ctx, "Li Wei")
	require.NoError(t, err)
	require.Equal(t, []int64{u.ID}, ids)

	progress := 90
	saved, err := c.WriteTask(ctx, tasks[1].ID, model.TaskUpdate{Progress: &progress, LeadSet: true, LeadID: &u.ID})
	require.NoError(t, err)
	assert.Equal(t, 90, saved.Progress)
	assert.Equal(t, "Li Wei", saved.LeadName())

	again, ok, err := c.GetTask(ctx, tasks[1].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved.Progress, again.Progress)
	assert.Equal(t, saved.Lead, again.Lead)

	require.NoError(t, c.UnlinkTask(ctx, tasks[1].ID))
	_, ok, err = c.GetTask(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	tl, err := c.Gantt(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, tl.Bars, 4)

	details, err := c.Details(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, details.TotalTasks)
}

func TestClientErrors(t *testing.T) {
	c, _, _ := newServer(t, api.Options{})
	ctx := context.Background()

	bad := "2024-02-30"
	_, err := c.CreateTask(ctx, api.CreateTaskRequest{WBS: "1", Name: "x", StartDate: "2024-01-01", EndDate: bad})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "invalid task")

	err = c.UnlinkTask(ctx, 404)
	assert.True(t, IsNotFound(err))
}

func TestClientTokenAndExport(t *testing.T) {
	c, _, _ := newServer(t, api.Options{Token: "tok"})
	ctx := context.Background()

	_, err := c.WithToken("").Projects(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.Sample(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	sum, err := c.Export(ctx, "1", &buf)
	require.NoError(t, err)
	assert.Equal(t, "Project_1_GanttChart.xlsx", sum.FileName)
	assert.Equal(t, 5, sum.Tasks)
	assert.Equal(t, "2024-01-01", sum.Start)
	assert.Equal(t, "2024-02-10", sum.End)
	assert.Equal(t, 41, sum.Days)
	assert.NotZero(t, buf.Len())
}

func TestSubscriberReceivesChanges(t *testing.T) {
	c, _, srv := newServer(t, api.Options{})
	sub, err := c.Subscriber()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan api.WSMessage, 4)
	go sub.Run(ctx, func(m api.WSMessage) { got <- m })
	require.Eventually(t, func() bool { return srv.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = c.CreateTask(context.Background(), api.CreateTaskRequest{WBS: "6", Name: "Notify", StartDate: "2024-01-01", EndDate: "2024-01-01"})
	require.NoError(t, err)
	select {
	case m := <-got:
		assert.Equal(t, api.MsgTasksChanged, m.Type)
		assert.Equal(t, "6", m.Root)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}
