package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wbs-gantt/pkg/api"
	"wbs-gantt/pkg/model"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func printTask(cmd *cobra.Command, verb string, t model.Task) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s task %d %s %q %s..%s %d%% lead=%s\n",
		verb, t.ID, t.WBS, t.Name, t.StartDate, t.EndDate, t.Progress, t.LeadName())
}

func (a *app) createCmd() *cobra.Command {
	var req api.CreateTaskRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task; with --parent and no --wbs the next child code is used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.WBS == "" && req.Parent == "" {
				return fmt.Errorf("one of --wbs or --parent is required")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			t, err := c.CreateTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			printTask(cmd, "created", t)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&req.WBS, "wbs", "", "explicit WBS code")
	fl.StringVar(&req.Parent, "parent", "", "parent WBS code")
	fl.StringVar(&req.Name, "name", "", "task name")
	fl.StringVar(&req.StartDate, "start", "", "start date YYYY-MM-DD")
	fl.StringVar(&req.EndDate, "end", "", "end date YYYY-MM-DD")
	fl.Int64Var(&req.LeadID, "lead-id", 0, "lead user id")
	fl.IntVar(&req.Progress, "progress", 0, "progress 0-100")
	fl.StringVar(&req.Priority, "priority", "", "low|medium|high|urgent")
	fl.StringVar(&req.Description, "description", "", "free text")
	fl.StringVar(&req.Color, "color", "", "bar color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <parent>",
		Short: "Print the WBS code the next child of parent would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			code, err := c.NextWBS(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var name, start, end string
	cmd := &cobra.Command{
		Use:   "add <root>",
		Short: "Append a task as the next direct child of a project root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !hasProject(s.Projects(), args[0]) {
				return fmt.Errorf("project %s not found", args[0])
			}
			t, err := s.NewTask(cmd.Context(), name, start, end)
			if err != nil {
				return err
			}
			printTask(cmd, "created", t)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&name, "name", "", "task name")
	fl.StringVar(&start, "start", "", "start date YYYY-MM-DD")
	fl.StringVar(&end, "end", "", "end date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func hasProject(projects []model.Project, root string) bool {
	for _, p := range projects {
		if p.Root == root {
			return true
		}
	}
	return false
}

func (a *app) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Change the name of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			t, err := s.Rename(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			printTask(cmd, "renamed", t)
			return nil
		},
	}
}

func (a *app) editCmd() *cobra.Command {
	var name, start, end, priority, description, color, code string
	var progress int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Write changed fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var u model.TaskUpdate
			fl := cmd.Flags()
			if fl.Changed("wbs") {
				u.WBS = &code
			}
			if fl.Changed("name") {
				u.Name = &name
			}
			if fl.Changed("start") {
				u.StartDate = &start
			}
			if fl.Changed("end") {
				u.EndDate = &end
			}
			if fl.Changed("progress") {
				u.Progress = &progress
			}
			if fl.Changed("priority") {
				p := model.Priority(priority)
				u.Priority = &p
			}
			if fl.Changed("description") {
				u.Description = &description
			}
			if fl.Changed("color") {
				u.Color = &color
			}
			if u.Empty() {
				return fmt.Errorf("nothing to write; pass at least one field flag")
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			t, err := s.Edit(cmd.Context(), id, u)
			if err != nil {
				return err
			}
			printTask(cmd, "updated", t)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&code, "wbs", "", "new WBS code")
	fl.StringVar(&name, "name", "", "new name")
	fl.StringVar(&start, "start", "", "new start date")
	fl.StringVar(&end, "end", "", "new end date")
	fl.IntVar(&progress, "progress", 0, "new progress")
	fl.StringVar(&priority, "priority", "", "new priority")
	fl.StringVar(&description, "description", "", "new description")
	fl.StringVar(&color, "color", "", "new bar color")
	return cmd
}

func (a *app) assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <lead name|Unassigned>",
		Short: "Set or clear the lead of a task by display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			t, err := s.SetLead(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			printTask(cmd, "assigned", t)
			return nil
		},
	}
}

func (a *app) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <start> <end>",
		Short: "Change the date span of a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			t, err := s.MoveDates(cmd.Context(), id, args[1], args[2])
			if err != nil {
				return err
			}
			printTask(cmd, "moved", t)
			return nil
		},
	}
}

func (a *app) progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id> <percent>",
		Short: "Set the progress of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pct, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid progress %q", args[1])
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			t, err := s.SetProgress(cmd.Context(), id, pct)
			if err != nil {
				return err
			}
			printTask(cmd, "updated", t)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := a.sessionFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := s.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d; %d tasks left in project %s\n", id, len(s.Tasks()), s.Root())
			return nil
		},
	}
}

func (a *app) sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Load the built-in sample projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Sample(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d sample tasks (%d already present)\n", res.Tasks, len(res.Skipped))
			return nil
		},
	}
}
