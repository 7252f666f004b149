// Package seed loads users and tasks into a store, either from a YAML file
// or from the built-in sample project.
package seed

import (
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/store"
)

type User struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

type Task struct {
	WBS         string `yaml:"wbs"`
	Name        string `yaml:"name"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Lead        string `yaml:"lead"` // username or display name
	Progress    int    `yaml:"progress"`
	Priority    string `yaml:"priority"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
}

// File is the on-disk seed format.
type File struct {
	Users []User `yaml:"users"`
	Tasks []Task `yaml:"tasks"`
}

// Result counts what Apply wrote and what it left alone.
type Result struct {
	Users   int      `json:"users"`
	Tasks   int      `json:"tasks"`
	Skipped []string `json:"skipped,omitempty"`
}

func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// Apply writes f into st. Existing usernames and WBS codes are skipped so a
// seed can be applied on every start.
func Apply(st store.TaskStore, f File) (Result, error) {
	var res Result
	for _, u := range f.Users {
		user := model.User{Username: u.Username, Name: u.Name, IsAdmin: u.Admin}
		if u.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return res, err
			}
			user.PasswordHash = string(hash)
		}
		if _, err := st.CreateUser(user); err != nil {
			if errors.Is(err, store.ErrUserExists) {
				res.Skipped = append(res.Skipped, "user "+u.Username)
				continue
			}
			return res, err
		}
		res.Users++
	}
	for _, t := range f.Tasks {
		task := model.Task{
			WBS:         t.WBS,
			Name:        t.Name,
			StartDate:   t.Start,
			EndDate:     t.End,
			Progress:    t.Progress,
			Priority:    model.Priority(t.Priority),
			Description: t.Description,
			Color:       t.Color,
		}
		if t.Lead != "" {
			ref, err := resolveLead(st, t.Lead)
			if err != nil {
				return res, fmt.Errorf("task %s: %w", t.WBS, err)
			}
			task.Lead = ref
		}
		if _, err := st.CreateTask(task); err != nil {
			if errors.Is(err, store.ErrConflict) {
				res.Skipped = append(res.Skipped, "task "+t.WBS)
				continue
			}
			return res, fmt.Errorf("task %s: %w", t.WBS, err)
		}
		res.Tasks++
	}
	log.Printf("seed applied users=%d tasks=%d skipped=%d", res.Users, res.Tasks, len(res.Skipped))
	return res, nil
}

func resolveLead(st store.TaskStore, lead string) (*model.UserRef, error) {
	if u, ok, err := st.GetUserByUsername(lead); err != nil {
		return nil, err
	} else if ok {
		ref := u.Ref()
		return &ref, nil
	}
	ids, err := st.UserIDsByName(lead)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("unknown lead %q", lead)
	}
	return &model.UserRef{ID: ids[0], Name: lead}, nil
}

// Sample is the demo data set: two projects, seven tasks.
func Sample() File {
	return File{Tasks: []Task{
		{WBS: "1", Name: "Project Planning", Start: "2024-01-01", End: "2024-01-05", Progress: 100, Priority: "high"},
		{WBS: "1.1", Name: "Design Phase", Start: "2024-01-06", End: "2024-01-15", Progress: 75, Priority: "medium"},
		{WBS: "1.2", Name: "Development", Start: "2024-01-16", End: "2024-01-30", Progress: 50, Priority: "high"},
		{WBS: "1.3", Name: "Testing", Start: "2024-01-25", End: "2024-02-05", Progress: 25, Priority: "medium"},
		{WBS: "1.4", Name: "Deployment", Start: "2024-02-06", End: "2024-02-10", Progress: 0, Priority: "urgent"},
		{WBS: "2", Name: "Project Alpha Planning", Start: "2024-02-01", End: "2024-02-05", Progress: 80, Priority: "high"},
		{WBS: "2.1", Name: "Alpha Analysis", Start: "2024-02-06", End: "2024-02-15", Progress: 60, Priority: "medium"},
	}}
}
