package model

// Project summarizes one WBS root for the project selector.
type Project struct {
	Root       string `json:"wbs_root"`
	Name       string `json:"name"`
	TaskCount  int    `json:"task_count"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	RootTaskID int64  `json:"root_task_id"`
}

// ProjectDetails carries the statistics shown for a single project.
type ProjectDetails struct {
	Root            string  `json:"wbs_root"`
	Name            string  `json:"project_name"`
	TotalTasks      int     `json:"total_tasks"`
	CompletedTasks  int     `json:"completed_tasks"`
	InProgressTasks int     `json:"in_progress_tasks"`
	DelayedTasks    int     `json:"delayed_tasks"`
	StartDate       string  `json:"project_start_date,omitempty"`
	EndDate         string  `json:"project_end_date,omitempty"`
	DurationDays    int     `json:"project_duration"`
	OverallProgress float64 `json:"overall_progress"`
	Completed       []Task  `json:"completed_task_ids"`
	Delayed         []Task  `json:"delayed_task_ids"`
	Critical        []Task  `json:"critical_task_ids"`
}
