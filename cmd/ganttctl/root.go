package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"wbs-gantt/pkg/client"
	"wbs-gantt/pkg/config"
	"wbs-gantt/pkg/view"
	"wbs-gantt/pkg/wbs"
)

// app carries the resolved connection settings shared by all commands.
type app struct {
	cfg config.Client
	hc  *http.Client // set by tests
}

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "ganttctl",
		Short:        "Browse and edit WBS projects on a gantt controller",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.Server, "server", a.cfg.Server, "controller base URL (env GANTT_SERVER)")
	pf.StringVar(&a.cfg.Token, "token", a.cfg.Token, "static token or JWT (env GANTT_TOKEN)")
	pf.StringVar(&a.cfg.CAFile, "ca", a.cfg.CAFile, "CA file for controller TLS (optional)")
	pf.StringVar(&a.cfg.Cert, "cert", a.cfg.Cert, "client TLS certificate (for mTLS)")
	pf.StringVar(&a.cfg.Key, "key", a.cfg.Key, "client TLS key (for mTLS)")
	pf.BoolVar(&a.cfg.Insecure, "insecure", a.cfg.Insecure, "skip TLS verify for controller (not recommended)")
	pf.DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "per-request timeout")

	root.AddCommand(
		a.projectsCmd(),
		a.viewCmd(),
		a.watchCmd(),
		a.detailsCmd(),
		a.ganttCmd(),
		a.nextCmd(),
		a.createCmd(),
		a.addCmd(),
		a.editCmd(),
		a.renameCmd(),
		a.assignCmd(),
		a.moveCmd(),
		a.progressCmd(),
		a.deleteCmd(),
		a.exportCmd(),
		a.publishCmd(),
		a.sampleCmd(),
		a.usersCmd(),
		a.auditCmd(),
		a.loginCmd(),
	)
	return root
}

func (a *app) client() (*client.Client, error) {
	hc := a.hc
	if hc == nil {
		var err error
		hc, err = client.BuildHTTPClient(a.cfg.CAFile, a.cfg.Cert, a.cfg.Key, a.cfg.Insecure, a.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("http client build failed: %w", err)
		}
	}
	return client.New(a.cfg.Server, a.cfg.Token, hc), nil
}

// session loads all projects and switches to root when given.
func (a *app) session(ctx context.Context, root string) (*view.Session, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	s := view.NewSession(c, nil)
	if err := s.LoadProjects(ctx); err != nil {
		return nil, err
	}
	if root != "" && root != s.Root() {
		if err := s.SwitchProject(ctx, root); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sessionFor opens a session on the project that holds task id.
func (a *app) sessionFor(ctx context.Context, id int64) (*view.Session, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	t, ok, err := c.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("task %d not found", id)
	}
	return a.session(ctx, wbs.Root(t.WBS))
}
