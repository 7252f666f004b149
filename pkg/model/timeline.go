package model

// TimelineBar is one bar handed to the timeline renderer.
type TimelineBar struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Progress     int      `json:"progress"`
	Dependencies []string `json:"dependencies"`
	CustomClass  string   `json:"custom_class"`
}

// SkippedTask names a task left out of the timeline and why.
type SkippedTask struct {
	ID     int64  `json:"id"`
	WBS    string `json:"wbs"`
	Reason string `json:"reason"`
}

// Timeline is the renderable bar set plus what had to be dropped.
type Timeline struct {
	Bars    []TimelineBar `json:"bars"`
	Skipped []SkippedTask `json:"skipped,omitempty"`
}
