package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbs-gantt/pkg/model"
)

func TestTaskRowMapping(t *testing.T) {
	task := model.Task{ID: 3, WBS: "2.1", Name: "Build", StartDate: "2024-03-01", EndDate: "2024-03-04",
		Lead: &model.UserRef{ID: 9, Name: "Sam"}, Progress: 20, Priority: model.PriorityUrgent, Duration: 4}
	row := toTaskRow(task)
	require.NotNil(t, row.LeadID)
	assert.Equal(t, int64(9), *row.LeadID)

	row.Lead = &userRow{ID: 9, Username: "sam", Name: ""}
	back := toModelTask(row)
	assert.Equal(t, "sam", back.Lead.Name)
	assert.Equal(t, model.PriorityUrgent, back.Priority)
	assert.Equal(t, 4, back.Duration)

	row.LeadID, row.Lead = nil, nil
	assert.Nil(t, toModelTask(row).Lead)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `1\_a\%`, escapeLike("1_a%"))
}

func TestConfigDSN(t *testing.T) {
	c := Config{User: "u", Pass: "p", Host: "db", Port: "3307", Name: "gantt"}
	assert.Equal(t, "u:p@tcp(db:3307)/gantt?charset=utf8mb4&parseTime=True&loc=Local", c.dsn())
	c.DSN = "custom"
	assert.Equal(t, "custom", c.dsn())
}
