package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/view"
)

func (a *app) projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects that have a root task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			projects, err := c.Projects(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects. Run `ganttctl sample` to create one.")
				return nil
			}
			for _, p := range projects {
				fmt.Fprintf(out, "%-6s %-30s %3d tasks  %s .. %s\n", p.Root, p.Name, p.TaskCount, p.StartDate, p.EndDate)
			}
			return nil
		},
	}
}

type viewFlags struct {
	mode     string
	width    int
	selected int64
}

func (f *viewFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", string(view.ModeDay), "timeline scale: day|week|month")
	cmd.Flags().IntVar(&f.width, "width", 160, "terminal width, 0 for unbounded")
	cmd.Flags().Int64Var(&f.selected, "select", 0, "highlight this task id")
}

func (f *viewFlags) apply(s *view.Session) error {
	mode, err := view.ParseMode(f.mode)
	if err != nil {
		return err
	}
	s.SetMode(mode)
	if f.selected != 0 {
		s.Select(f.selected)
	}
	return nil
}

func (a *app) viewCmd() *cobra.Command {
	var f viewFlags
	cmd := &cobra.Command{
		Use:   "view [root]",
		Short: "Show the task list and timeline of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			if err := f.apply(s); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, view.Render(s.Model(), f.width))
			printDiagnostics(out, s.Diagnostics())
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

// printDiagnostics reports loaded tasks that no project view shows.
func printDiagnostics(out io.Writer, d view.Diagnostics) {
	if d.Unrooted > 0 {
		fmt.Fprintf(out, "%d task(s) have no WBS code\n", d.Unrooted)
	}
	for _, root := range d.Orphans {
		fmt.Fprintf(out, "tasks under %s have no root task %s\n", root, root)
	}
}

func (a *app) watchCmd() *cobra.Command {
	var f viewFlags
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Re-render a project whenever the controller reports a change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			s, err := a.session(ctx, firstArg(args))
			if err != nil {
				return err
			}
			if err := f.apply(s); err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			sub, err := c.Subscriber()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, view.Render(s.Model(), f.width))
			sub.Run(ctx, func(msg api.WSMessage) {
				onNotify(ctx, s, msg, f.width, out)
			})
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func onNotify(ctx context.Context, s *view.Session, msg api.WSMessage, width int, out io.Writer) {
	switch msg.Type {
	case api.MsgTasksDelayed:
		fmt.Fprintf(out, "\n! delayed tasks reported (version %d)\n", msg.Version)
	case api.MsgTasksChanged:
		if msg.Root != "" && msg.Root != s.Root() {
			return
		}
		if err := s.Refresh(ctx); err != nil {
			fmt.Fprintf(out, "refresh failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "\n-- version %d --\n%s\n", msg.Version, view.Render(s.Model(), width))
	}
}

func (a *app) detailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <root>",
		Short: "Show project statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			d, err := c.Details(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s: %s\n", d.Root, d.Name)
			fmt.Fprintf(out, "  span       %s .. %s (%d days)\n", d.StartDate, d.EndDate, d.DurationDays)
			fmt.Fprintf(out, "  progress   %.1f%%\n", d.OverallProgress)
			fmt.Fprintf(out, "  tasks      %d total, %d completed, %d in progress, %d delayed\n",
				d.TotalTasks, d.CompletedTasks, d.InProgressTasks, d.DelayedTasks)
			for _, t := range d.Delayed {
				fmt.Fprintf(out, "  delayed    %s %s (ends %s, %d%%)\n", t.WBS, t.Name, t.EndDate, t.Progress)
			}
			for _, t := range d.Critical {
				fmt.Fprintf(out, "  critical   %s %s [%s]\n", t.WBS, t.Name, t.Priority)
			}
			return nil
		},
	}
}

func (a *app) ganttCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gantt <root>",
		Short: "List the timeline bars the controller serves for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			tl, err := c.Gantt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range tl.Bars {
				fmt.Fprintf(out, "%-6s %-30s %s .. %s %3d%% %s\n", b.ID, b.Name, b.Start, b.End, b.Progress, b.CustomClass)
			}
			for _, sk := range tl.Skipped {
				fmt.Fprintf(out, "skipped %s (id %d): %s\n", sk.WBS, sk.ID, sk.Reason)
			}
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
