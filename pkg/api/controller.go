package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wbs-gantt/pkg/auth"
	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
	"wbs-gantt/pkg/version"
)

// Options configures authentication and the clock used for derived views.
type Options struct {
	Token      string       // static bootstrap token, empty disables
	Signer     *auth.Signer // JWT issuer/verifier
	RequireJWT bool
	Now        func() time.Time
}

// Server holds the state shared by the HTTP handlers.
type Server struct {
	st   store.TaskStore
	hub  *WSHub
	opts Options

	version int64 // bumped on every successful write
	mu      sync.Mutex
	changed *sync.Cond
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, st store.TaskStore, hub *WSHub, opts Options) *Server {
	if opts.Signer == nil {
		opts.Signer = auth.NewSigner("", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{st: st, hub: hub, opts: opts}
	s.changed = sync.NewCond(&s.mu)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wbs-gantt controller"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if p, ok := st.(interface{ Ping() error }); ok {
			if err := p.Ping(); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version": atomic.LoadInt64(&s.version),
			"build":   version.Build,
		})
	})

	mux.HandleFunc("/api/v1/audit", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit := queryInt(r, "limit", 50)
		entries, err := st.ListAudit(limit)
		if err != nil {
			http.Error(w, "failed to list audit", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}))

	mux.HandleFunc("/api/v1/users", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		refs, err := st.SearchUsers(r.URL.Query().Get("name"))
		if err != nil {
			http.Error(w, "failed to list users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, refs)
	}))

	mux.HandleFunc("/api/v1/users/search", s.guard(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ids, err := st.UserIDsByName(r.URL.Query().Get("name"))
		if err != nil {
			http.Error(w, "failed to search users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, ids)
	}))

	mux.HandleFunc("/api/v1/ws/ui", s.guard(hub.HandleUI))

	s.registerTaskRoutes(mux)
	s.registerProjectRoutes(mux)
	(&AuthHandler{Store: st, Signer: opts.Signer}).RegisterRoutes(mux)
	return s
}

// Hub exposes the notification hub, e.g. for the delayed-task sweep.
func (s *Server) Hub() *WSHub { return s.hub }

// Version is the current change counter.
func (s *Server) Version() int64 { return atomic.LoadInt64(&s.version) }

// NotifyChanged bumps the change counter, wakes long-polls and tells
// viewers to refresh root (empty for all projects).
func (s *Server) NotifyChanged(root string) {
	v := atomic.AddInt64(&s.version, 1)
	s.mu.Lock()
	s.changed.Broadcast()
	s.mu.Unlock()
	s.hub.Broadcast(WSMessage{Type: MsgTasksChanged, Root: root, Version: v})
}

// waitForVersion blocks up to 25s until the change counter passes waitStr.
func (s *Server) waitForVersion(waitStr string) {
	target, err := strconv.ParseInt(waitStr, 10, 64)
	if err != nil {
		return
	}
	deadline := time.Now().Add(25 * time.Second)
	timer := time.AfterFunc(25*time.Second, func() {
		s.mu.Lock()
		s.changed.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for atomic.LoadInt64(&s.version) <= target && time.Now().Before(deadline) {
		s.changed.Wait()
	}
}

// actor names the caller in audit entries.
func (s *Server) actor(r *http.Request) string {
	if claims, ok := s.claims(r); ok {
		return claims.Username
	}
	return "api"
}

func (s *Server) claims(r *http.Request) (*auth.Claims, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, false
	}
	claims, err := s.opts.Signer.Parse(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return nil, false
	}
	return claims, true
}

// guard applies the static token and, when required, JWT authentication.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	static := authFunc(s.opts.Token)
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RequireJWT {
			if _, ok := s.claims(r); !ok && !(s.opts.Token != "" && static(r)) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
			return
		}
		if !static(r) {
			if _, ok := s.claims(r); !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) audit(r *http.Request, action, target, detail string) {
	err := s.st.AppendAudit(model.AuditEntry{
		ID:        uuid.NewString(),
		Actor:     s.actor(r),
		Action:    action,
		Target:    target,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("audit append failed action=%s target=%s err=%v", action, target, err)
	}
}

// storeError maps store sentinels to HTTP status codes.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidTask):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrUserExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("store error: %v", err)
		http.Error(w, "store error", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func authFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			// also allow simple Bearer token
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		return h == token
	}
}
