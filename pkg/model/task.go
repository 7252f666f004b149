package model

import "time"

// Priority ranks a task for display and for the critical-task list.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DefaultColor is the bar color assigned to tasks created without one.
const DefaultColor = "#3498db"

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// IsCritical is true for high and urgent tasks.
func (p Priority) IsCritical() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// OrDefault returns medium for an empty or unknown priority.
func (p Priority) OrDefault() Priority {
	if p.IsValid() {
		return p
	}
	return PriorityMedium
}

// UserRef is the id + display name pair used for a task lead.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task is one WBS line. Dates are kept as ISO strings so that malformed
// legacy values survive a round trip and can be reported rather than lost.
type Task struct {
	ID          int64     `json:"id"`
	WBS         string    `json:"wbs"`
	Name        string    `json:"name"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Lead        *UserRef  `json:"lead"`
	Progress    int       `json:"progress"`
	Priority    Priority  `json:"priority"`
	Duration    int       `json:"duration"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LeadName returns the display name of the lead or "Unassigned".
func (t Task) LeadName() string {
	if t.Lead == nil || t.Lead.Name == "" {
		return Unassigned
	}
	return t.Lead.Name
}

// Unassigned is the display value of a task without a lead.
const Unassigned = "Unassigned"

// TaskFilter narrows a task search. Zero value matches everything.
type TaskFilter struct {
	WBS   string  // exact wbs match
	Root  string  // project root: exact match or any descendant
	IDs   []int64 // restrict to these ids
	Limit int
}
