package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wbs-gantt/pkg/export"
)

func (a *app) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <root>",
		Short: "Download the project gantt chart as xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			c, err := a.client()
			if err != nil {
				return err
			}
			if output == "" {
				output = export.FileName(root)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			sum, err := c.Export(cmd.Context(), root, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nwritten to %s\n", sum, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default Project_<root>_GanttChart.xlsx)")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	var credentials, tokenFile, calendarID string
	cmd := &cobra.Command{
		Use:   "publish <root>",
		Short: "Publish the project tasks as all-day Google Calendar events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			c, err := a.client()
			if err != nil {
				return err
			}
			tasks, err := c.ProjectTasks(cmd.Context(), root)
			if err != nil {
				return err
			}
			pub, err := export.NewCalendarPublisherFromFiles(cmd.Context(), credentials, tokenFile, calendarID)
			if err != nil {
				return err
			}
			res, err := pub.Publish(cmd.Context(), root, tasks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published project %s: %d created, %d updated, %d skipped\n",
				root, res.Created, res.Updated, len(res.Skipped))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&credentials, "credentials", os.Getenv("GANTT_GOOGLE_CREDENTIALS"), "OAuth client secrets JSON")
	fl.StringVar(&tokenFile, "token-file", os.Getenv("GANTT_GOOGLE_TOKEN"), "stored OAuth token JSON")
	fl.StringVar(&calendarID, "calendar", "primary", "target calendar id")
	return cmd
}
