package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/auth"
	"wbs-gantt/pkg/config"
	"wbs-gantt/pkg/db"
	"wbs-gantt/pkg/seed"
	"wbs-gantt/pkg/store"
	"wbs-gantt/pkg/sweep"
	"wbs-gantt/pkg/version"
)

func main() {
	envFile := os.Getenv("GANTT_ENV_FILE")
	if err := config.LoadDotEnv(envFile); err != nil {
		log.Printf("load env file failed: %v", err)
	}
	cfg := config.ControllerFromEnv()
	cfg.BindFlags(flag.CommandLine)
	showVersion := flag.Bool("version", false, "print build and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("controller"))
		return
	}
	log.Print(version.String("controller"))

	taskStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.Store, err)
	}
	defer closeStore()

	if err := loadSeeds(taskStore, cfg); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	hub := api.NewWSHub()
	mux := http.NewServeMux()
	srvAPI := api.RegisterRoutes(mux, taskStore, hub, api.Options{
		Token:      cfg.Token,
		Signer:     auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL),
		RequireJWT: cfg.RequireJWT,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if w, ok := taskStore.(interface {
		WatchTasks(context.Context, func())
	}); ok {
		go w.WatchTasks(ctx, func() {
			srvAPI.NotifyChanged("")
			log.Printf("consul watch triggered; version=%d", srvAPI.Version())
		})
	}

	if cfg.SweepSchedule != "" {
		sw := sweep.New(taskStore, func(delayed []sweep.DelayedTask) {
			log.Printf("sweep: delayed tasks=%d subscribers=%d", len(delayed), hub.Subscribers())
			hub.Broadcast(api.WSMessage{Type: api.MsgTasksDelayed, Version: srvAPI.Version(), Payload: delayed})
		}, nil)
		if err := sw.Start(ctx, cfg.SweepSchedule); err != nil {
			log.Fatalf("start sweep: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("controller listening on %s store=%s", cfg.Addr, cfg.Store)
	if err := api.Serve(srv, cfg.TLSCert, cfg.TLSKey, cfg.ClientCA); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore builds the configured backend and its cleanup func.
func openStore(cfg config.Controller) (store.TaskStore, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), noop, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, noop, err
			}
		}
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Printf("close sqlite: %v", err)
			}
		}, nil
	case "mysql":
		gdb, err := db.Init(cfg.MySQL)
		if err != nil {
			return nil, noop, err
		}
		return db.NewStore(gdb), noop, nil
	case "consul":
		st, err := store.NewConsulStore(cfg.ConsulAddr)
		return st, noop, err
	default:
		return nil, noop, fmt.Errorf("unsupported store type: %s", cfg.Store)
	}
}

func loadSeeds(st store.TaskStore, cfg config.Controller) error {
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		res, err := seed.Apply(st, f)
		if err != nil {
			return err
		}
		log.Printf("seeded from %s users=%d tasks=%d skipped=%d", cfg.SeedFile, res.Users, res.Tasks, len(res.Skipped))
	}
	if cfg.Sample {
		res, err := seed.Apply(st, seed.Sample())
		if err != nil {
			return err
		}
		log.Printf("sample project loaded tasks=%d skipped=%d", res.Tasks, len(res.Skipped))
	}
	return nil
}
