package clubs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"Fairview Golf Club", "fairview"},
		{"Lakeside G.C.", "lakeside"},
		{"  ROYAL OAKS GOLF  ", "royal oaks"},
		{"St Andrew's Links", "st andrews links"},
		{"Hillcrest", "hillcrest"},
		{"", ""},
		{"Golf Club", ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestSlugCandidates(t *testing.T) {
	// suffix noise is stripped before slugging
	got := SlugCandidates("Fairview Golf Club")
	assert.Equal(t, []string{"fairview"}, got)

	got = SlugCandidates("Royal Oaks Links")
	assert.Contains(t, got, "royal-oaks-links")
	assert.Contains(t, got, "royal_oaks_links")
	assert.Contains(t, got, "royaloakslinks")
	assert.Contains(t, got, "royal-oaks")
	assert.Contains(t, got, "oaks-links")
	// most likely form first
	assert.Equal(t, "royal-oaks-links", got[0])

	assert.Nil(t, SlugCandidates("   "))
}

func TestSlugCandidatesDeduplicated(t *testing.T) {
	got := SlugCandidates("Hillcrest")
	assert.Equal(t, []string{"hillcrest"}, got)

	seen := map[string]bool{}
	for _, c := range SlugCandidates("Royal Oaks Golf Resort") {
		assert.False(t, seen[c], "duplicate candidate %q", c)
		seen[c] = true
	}
}
