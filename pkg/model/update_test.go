package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, body string) (TaskUpdate, error) {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	return ParseTaskUpdate(fields)
}

func TestParseTaskUpdate(t *testing.T) {
	u, err := parse(t, `{"name":"Build","progress":40,"priority":"high","lead":7}`)
	require.NoError(t, err)
	assert.Equal(t, "Build", *u.Name)
	assert.Equal(t, 40, *u.Progress)
	assert.Equal(t, PriorityHigh, *u.Priority)
	require.NotNil(t, u.LeadID)
	assert.Equal(t, int64(7), *u.LeadID)
	assert.ElementsMatch(t, []string{"name", "progress", "priority", "lead"}, u.Fields())

	u, err = parse(t, `{"progress":50.0}`)
	require.NoError(t, err)
	assert.Equal(t, 50, *u.Progress)

	for _, clear := range []string{`null`, `false`, `0`, `{"id":0}`} {
		u, err = parse(t, `{"lead":`+clear+`}`)
		require.NoError(t, err, clear)
		assert.True(t, u.LeadSet)
		assert.Nil(t, u.LeadID, clear)
	}
}

func TestParseTaskUpdateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"null progress", `{"progress":null}`},
		{"fractional progress", `{"progress":50.7}`},
		{"string progress", `{"progress":"50"}`},
		{"null name", `{"name":null}`},
		{"null end date", `{"end_date":null}`},
		{"null priority", `{"priority":null}`},
		{"numeric wbs", `{"wbs":3}`},
		{"unknown field", `{"owner":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.body)
			assert.Error(t, err)
		})
	}
}

func TestFieldMapRoundTrip(t *testing.T) {
	name, progress := "Ship", 90
	in := TaskUpdate{Name: &name, Progress: &progress, LeadSet: true}
	raw, err := json.Marshal(in.FieldMap())
	require.NoError(t, err)
	out, err := parse(t, string(raw))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
