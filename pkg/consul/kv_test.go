//go:build consul

package consul

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/consul/consultest"
)

type doc struct {
	Name string `json:"name"`
}

func newKV(t *testing.T) (*KV, *consultest.Server) {
	t.Helper()
	srv := consultest.NewServer(t)
	kv, err := New(srv.URL, "test/")
	require.NoError(t, err)
	return kv, srv
}

func TestDocuments(t *testing.T) {
	kv, srv := newKV(t)

	var d doc
	_, ok, err := kv.Get("docs/1", &d)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Put("docs/1", doc{Name: "one"}))
	require.NoError(t, kv.Put("docs/2", doc{Name: "two"}))
	require.NoError(t, kv.Put("other/1", doc{Name: "elsewhere"}))
	assert.Equal(t, []string{"test/docs/1", "test/docs/2"}, srv.Keys("test/docs/"))

	index, ok, err := kv.Get("docs/1", &d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", d.Name)
	assert.NotZero(t, index)

	docs, err := kv.List("docs/")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"name":"two"}`, string(docs[1]))

	require.NoError(t, kv.Delete("docs/1"))
	docs, err = kv.List("docs/")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	empty, err := kv.List("none/")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCAS(t *testing.T) {
	kv, _ := newKV(t)

	ok, err := kv.CAS("claim", 7, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = kv.CAS("claim", 8, 0)
	require.NoError(t, err)
	assert.False(t, ok, "index 0 only creates")

	var owner int64
	index, _, err := kv.Get("claim", &owner)
	require.NoError(t, err)
	assert.Equal(t, int64(7), owner)

	ok, err = kv.CAS("claim", 9, index+1)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = kv.CAS("claim", 9, index)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.DeleteCAS("claim", index)
	require.NoError(t, err)
	assert.False(t, ok, "stale index must not delete")
	index, _, err = kv.Get("claim", &owner)
	require.NoError(t, err)
	ok, err = kv.DeleteCAS("claim", index)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err := kv.Get("claim", &owner)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNextIDRetriesAfterLostRace(t *testing.T) {
	kv, srv := newKV(t)
	var once sync.Once
	srv.OnWrite = func(method, key string) {
		if method == http.MethodPut && key == "test/seq/tasks" {
			// another controller takes id 1 between our read and our swap
			once.Do(func() { srv.Set("test/seq/tasks", []byte("1")) })
		}
	}

	id, err := kv.NextID("seq/tasks")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	v, ok := srv.Value("test/seq/tasks")
	require.True(t, ok)
	assert.Equal(t, "2", string(v))
}

func TestNextIDConcurrent(t *testing.T) {
	kv, _ := newKV(t)
	const n = 6
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := kv.NextID("seq/users")
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestWatch(t *testing.T) {
	kv, _ := newKV(t)
	ctx, cancel := context.WithCancel(context.Background())
	var changes atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		kv.Watch(ctx, "tasks/", func() { changes.Add(1) })
	}()

	require.Eventually(t, func() bool {
		assert.NoError(t, kv.Put("tasks/1", doc{Name: "touched"}))
		return changes.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
