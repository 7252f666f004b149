package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/auth"
	"wbs-gantt/pkg/config"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
)

func newTestApp(t *testing.T) (*app, *store.MemoryStore) {
	t.Helper()
	return newTestAppWith(t, api.Options{})
}

func newTestAppWith(t *testing.T, opts api.Options) (*app, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	mux := http.NewServeMux()
	opts.Now = func() time.Time {
		return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	}
	api.RegisterRoutes(mux, st, nil, opts)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &app{cfg: config.Client{Server: ts.URL, Timeout: 5 * time.Second}, hc: ts.Client()}, st
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRoot(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestProjectsAndView(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := run(t, a, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects")

	out, err = run(t, a, "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 7 sample tasks")

	out, err = run(t, a, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "Project Planning")
	assert.Contains(t, out, "Project Alpha Planning")

	out, err = run(t, a, "view", "2", "--mode", "week", "--width", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha Analysis")
	assert.Contains(t, out, "W06")

	_, err = run(t, a, "view", "--mode", "year")
	require.Error(t, err)

	out, err = run(t, a, "details", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "5 total")
}

func TestTaskCommands(t *testing.T) {
	a, st := newTestApp(t)
	_, err := run(t, a, "sample")
	require.NoError(t, err)
	_, err = st.CreateUser(model.User{Username: "li", Name: "Li Wei"})
	require.NoError(t, err)

	out, err := run(t, a, "create", "--parent", "1", "--name", "Handover", "--start", "2024-02-11", "--end", "2024-02-12")
	require.NoError(t, err)
	assert.Contains(t, out, "1.5")
	created, err := st.SearchTasks(model.TaskFilter{WBS: "1.5"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := strconv.FormatInt(created[0].ID, 10)

	out, err = run(t, a, "move", id, "2024-02-12", "2024-02-14")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-02-12..2024-02-14")

	_, err = run(t, a, "move", id, "2024-02-14", "2024-02-12")
	require.Error(t, err)

	out, err = run(t, a, "assign", id, "Li Wei")
	require.NoError(t, err)
	assert.Contains(t, out, "lead=Li Wei")

	out, err = run(t, a, "progress", id, "60")
	require.NoError(t, err)
	assert.Contains(t, out, "60%")

	out, err = run(t, a, "edit", id, "--name", "Go live", "--priority", "urgent")
	require.NoError(t, err)
	assert.Contains(t, out, `"Go live"`)

	_, err = run(t, a, "edit", id)
	require.Error(t, err)

	out, err = run(t, a, "users")
	require.NoError(t, err)
	assert.Equal(t, "Unassigned\nLi Wei\n", out)

	out, err = run(t, a, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "5 tasks left in project 1")

	out, err = run(t, a, "audit", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestAddRenameAndGantt(t *testing.T) {
	a, st := newTestApp(t)
	_, err := run(t, a, "sample")
	require.NoError(t, err)

	out, err := run(t, a, "next", "2")
	require.NoError(t, err)
	assert.Equal(t, "2.2\n", out)

	out, err = run(t, a, "add", "2", "--name", "Alpha Review", "--start", "2024-02-16", "--end", "2024-02-18")
	require.NoError(t, err)
	assert.Contains(t, out, "created task")
	assert.Contains(t, out, "2.2")

	out, err = run(t, a, "next", "2")
	require.NoError(t, err)
	assert.Equal(t, "2.3\n", out)

	_, err = run(t, a, "add", "42", "--name", "Nowhere")
	require.Error(t, err)

	added, err := st.SearchTasks(model.TaskFilter{WBS: "2.2"})
	require.NoError(t, err)
	require.Len(t, added, 1)
	id := strconv.FormatInt(added[0].ID, 10)

	out, err = run(t, a, "rename", id, "Alpha Sign-off")
	require.NoError(t, err)
	assert.Contains(t, out, `renamed task `+id+` 2.2 "Alpha Sign-off"`)

	out, err = run(t, a, "gantt", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha Analysis")
	assert.Contains(t, out, "Alpha Sign-off")
}

func TestViewReportsOrphans(t *testing.T) {
	a, st := newTestApp(t)
	_, err := run(t, a, "sample")
	require.NoError(t, err)
	_, err = st.CreateTask(model.Task{WBS: "7.1", Name: "Stray", StartDate: "2024-01-01", EndDate: "2024-01-02"})
	require.NoError(t, err)

	out, err := run(t, a, "view", "2", "--width", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "tasks under 7 have no root task 7")
	assert.NotContains(t, out, "have no WBS code")
}

func TestLoginVerifiesToken(t *testing.T) {
	a, _ := newTestAppWith(t, api.Options{Signer: auth.NewSigner("k", time.Hour), RequireJWT: true})
	body := strings.NewReader(`{"username":"pm","password":"pw","name":"Pat"}`)
	resp, err := a.hc.Post(a.cfg.Server+"/api/v1/auth/register", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out, err := run(t, a, "login", "pm", "--password", "pw")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	assert.Equal(t, 2, strings.Count(token, "."))

	_, err = run(t, a, "login", "pm", "--password", "nope")
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := run(t, a, "sample")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "p1.xlsx")
	out, err := run(t, a, "export", "1", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "project 1, 2024-01-01 to 2024-02-10, 41 days, 5 tasks")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
