package jobs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		ClubSlug:      "fairview",
		CourseID:      "1",
		Username:      "member1",
		Password:      "pin99",
		TargetDate:    "2026/09/05",
		Earliest:      "08:00",
		Latest:        "09:30",
		CurrentTime:   "10:00",
		RequiredSeats: 4,
		AcceptAtLeast: true,
		PlayerIDs:     []string{"101", "102"},
		PollSeconds:   20,
		MaxMinutes:    120,
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, validParams().Validate())

	p := validParams()
	p.Earliest = "08:00"
	p.Latest = "08:00" // single-slot window
	assert.NoError(t, p.Validate())
}

func TestValidateRejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing club", func(p *Params) { p.ClubSlug = "" }},
		{"missing course", func(p *Params) { p.CourseID = "" }},
		{"missing username", func(p *Params) { p.Username = "" }},
		{"missing password", func(p *Params) { p.Password = "" }},
		{"bad date format", func(p *Params) { p.TargetDate = "05/09/2026" }},
		{"bad time", func(p *Params) { p.Earliest = "8am" }},
		{"window inverted", func(p *Params) { p.Earliest = "10:00"; p.Latest = "09:00" }},
		{"zero seats", func(p *Params) { p.RequiredSeats = 0 }},
		{"too many seats", func(p *Params) { p.RequiredSeats = 5 }},
		{"no players", func(p *Params) { p.PlayerIDs = nil }},
		{"too many players", func(p *Params) { p.PlayerIDs = []string{"1", "2", "3", "4", "5"} }},
		{"blank player id", func(p *Params) { p.PlayerIDs = []string{"101", ""} }},
		{"zero poll", func(p *Params) { p.PollSeconds = 0 }},
		{"zero budget", func(p *Params) { p.MaxMinutes = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

// The query column list is unquoted, so a reserved word would silently
// resolve to a function (CURRENT_TIME) or fail to parse.
func TestJobColumnsAvoidReservedWords(t *testing.T) {
	reserved := map[string]bool{
		"current_time": true, "current_date": true, "current_timestamp": true,
		"current_user": true, "user": true, "order": true, "group": true,
	}
	cols := strings.Split(strings.ReplaceAll(jobColumns, "\n", ""), ",")
	assert.Len(t, cols, 21)
	for _, c := range cols {
		c = strings.TrimSpace(c)
		assert.NotEmpty(t, c)
		assert.False(t, reserved[c], "column %q is a reserved word", c)
	}
}

func TestSplitJoinIDs(t *testing.T) {
	assert.Equal(t, []string{"101", "102"}, splitIDs("101, 102"))
	assert.Equal(t, []string{"101"}, splitIDs(",101,,"))
	assert.Nil(t, splitIDs(""))
	assert.Equal(t, "101,102", joinIDs([]string{" 101", "", "102 "}))
	assert.Equal(t, "", joinIDs(nil))
}
