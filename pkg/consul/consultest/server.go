//go:build consul

// Package consultest serves the Consul KV HTTP endpoints from memory so
// consul-tagged packages can be tested without an agent. It covers get,
// recursive list, blocking queries, put and delete with optional cas.
package consultest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

// maxBlock caps blocking queries so tests never wait for the client's
// requested wait time.
const maxBlock = time.Second

// Server is an in-memory KV store behind an httptest server. Its URL can
// be passed straight to consulapi.Config.Address.
type Server struct {
	*httptest.Server

	// OnWrite, when set before use, runs ahead of every PUT and DELETE with
	// no lock held, so it may issue requests of its own.
	OnWrite func(method, key string)

	mu    sync.Mutex
	index uint64
	pairs map[string]*consulapi.KVPair
}

// NewServer starts a server that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	s := &Server{pairs: make(map[string]*consulapi.KVPair)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/kv/", s.handle)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Set writes key directly, bumping the index like a client write would.
func (s *Server) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

// Value returns the raw value of key.
func (s *Server) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), p.Value...), true
}

// Keys lists the stored keys under prefix in order.
func (s *Server) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.pairs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
	switch r.Method {
	case http.MethodGet:
		s.read(w, r, key)
	case http.MethodPut, http.MethodDelete:
		s.write(w, r, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, key string) {
	q := r.URL.Query()
	if raw := q.Get("index"); raw != "" {
		wait, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad index", http.StatusBadRequest)
			return
		}
		s.block(r, wait)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*consulapi.KVPair
	if _, recurse := q["recurse"]; recurse {
		for k, p := range s.pairs {
			if strings.HasPrefix(k, key) {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	} else if p, ok := s.pairs[key]; ok {
		out = append(out, p)
	}

	w.Header().Set("X-Consul-Index", strconv.FormatUint(s.index, 10))
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
	if len(out) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// block waits until the index moves past wait, the caller gives up, or
// maxBlock elapses.
func (s *Server) block(r *http.Request, wait uint64) {
	deadline := time.Now().Add(maxBlock)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		moved := s.index > wait
		s.mu.Unlock()
		if moved {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.OnWrite != nil {
		s.OnWrite(r.Method, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if raw := r.URL.Query().Get("cas"); raw != "" {
		want, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad cas index", http.StatusBadRequest)
			return
		}
		p, exists := s.pairs[key]
		if (want == 0 && exists) || (want != 0 && (!exists || p.ModifyIndex != want)) {
			fmt.Fprint(w, "false")
			return
		}
	}
	if r.Method == http.MethodDelete {
		if _, ok := s.pairs[key]; ok {
			s.index++
			delete(s.pairs, key)
		}
	} else {
		s.put(key, body)
	}
	fmt.Fprint(w, "true")
}

func (s *Server) put(key string, value []byte) {
	s.index++
	if p, ok := s.pairs[key]; ok {
		p.Value = value
		p.ModifyIndex = s.index
		return
	}
	s.pairs[key] = &consulapi.KVPair{Key: key, Value: value, CreateIndex: s.index, ModifyIndex: s.index}
}
