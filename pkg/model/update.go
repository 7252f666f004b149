package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var errNull = errors.New("null is not a value for this field")

// TaskUpdate is a partial write. Nil fields are left untouched.
type TaskUpdate struct {
	WBS         *string
	Name        *string
	StartDate   *string
	EndDate     *string
	Progress    *int
	Priority    *Priority
	Description *string
	Color       *string
	// LeadSet marks the lead as part of the write; LeadID nil clears it.
	LeadSet bool
	LeadID  *int64
}

// Empty reports whether the update carries no field.
func (u TaskUpdate) Empty() bool {
	return u.WBS == nil && u.Name == nil && u.StartDate == nil && u.EndDate == nil &&
		u.Progress == nil && u.Priority == nil && u.Description == nil && u.Color == nil && !u.LeadSet
}

// Fields lists the names of the fields carried by the update.
func (u TaskUpdate) Fields() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	add(u.WBS != nil, "wbs")
	add(u.Name != nil, "name")
	add(u.StartDate != nil, "start_date")
	add(u.EndDate != nil, "end_date")
	add(u.Progress != nil, "progress")
	add(u.Priority != nil, "priority")
	add(u.Description != nil, "description")
	add(u.Color != nil, "color")
	add(u.LeadSet, "lead")
	return out
}

// Apply returns a copy of t with the update applied. The lead name is
// resolved by the caller since only the id travels in the update.
func (u TaskUpdate) Apply(t Task) Task {
	if u.WBS != nil {
		t.WBS = *u.WBS
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.StartDate != nil {
		t.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		t.EndDate = *u.EndDate
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Color != nil {
		t.Color = *u.Color
	}
	if u.LeadSet {
		if u.LeadID == nil {
			t.Lead = nil
		} else {
			name := ""
			if t.Lead != nil && t.Lead.ID == *u.LeadID {
				name = t.Lead.Name
			}
			t.Lead = &UserRef{ID: *u.LeadID, Name: name}
		}
	}
	return t
}

// ParseTaskUpdate decodes a write field map. "lead" accepts an id, an
// {id,name} object, or false/null to clear the assignee.
func ParseTaskUpdate(fields map[string]json.RawMessage) (TaskUpdate, error) {
	var u TaskUpdate
	for key, raw := range fields {
		var err error
		switch key {
		case "wbs":
			u.WBS, err = decodeString(raw)
		case "name":
			u.Name, err = decodeString(raw)
		case "start_date":
			u.StartDate, err = decodeString(raw)
		case "end_date":
			u.EndDate, err = decodeString(raw)
		case "description":
			u.Description, err = decodeString(raw)
		case "color":
			u.Color, err = decodeString(raw)
		case "priority":
			var s *string
			s, err = decodeString(raw)
			if s != nil {
				p := Priority(*s)
				u.Priority = &p
			}
		case "progress":
			u.Progress, err = decodeProgress(raw)
		case "lead":
			u.LeadSet = true
			u.LeadID, err = decodeLead(raw)
		default:
			return TaskUpdate{}, fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return TaskUpdate{}, fmt.Errorf("field %s: %w", key, err)
		}
	}
	return u, nil
}

// FieldMap is the inverse of ParseTaskUpdate, used by clients.
func (u TaskUpdate) FieldMap() map[string]interface{} {
	m := map[string]interface{}{}
	if u.WBS != nil {
		m["wbs"] = *u.WBS
	}
	if u.Name != nil {
		m["name"] = *u.Name
	}
	if u.StartDate != nil {
		m["start_date"] = *u.StartDate
	}
	if u.EndDate != nil {
		m["end_date"] = *u.EndDate
	}
	if u.Progress != nil {
		m["progress"] = *u.Progress
	}
	if u.Priority != nil {
		m["priority"] = string(*u.Priority)
	}
	if u.Description != nil {
		m["description"] = *u.Description
	}
	if u.Color != nil {
		m["color"] = *u.Color
	}
	if u.LeadSet {
		if u.LeadID == nil {
			m["lead"] = false
		} else {
			m["lead"] = *u.LeadID
		}
	}
	return m
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func decodeString(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, errNull
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeProgress accepts whole numbers only; 50.0 is fine, 50.7 is not.
func decodeProgress(raw json.RawMessage) (*int, error) {
	if isNull(raw) {
		return nil, errNull
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("progress must be a whole number, got %v", f)
	}
	p := int(f)
	return &p, nil
}

func decodeLead(raw json.RawMessage) (*int64, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "null", "false", "0":
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var ref UserRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, err
		}
		if ref.ID == 0 {
			return nil, nil
		}
		return &ref.ID, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("lead must be a user id or false")
	}
	return &id, nil
}
