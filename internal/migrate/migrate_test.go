package migrate

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Column definitions are written unquoted, so none may collide with a
// reserved key word; CURRENT_TIME famously parses as the datetime
// function, not an identifier.
var reservedColumn = regexp.MustCompile(
	`(?im)^\s*(current_time|current_date|current_timestamp|current_user|user|order|group|table|default|check)\s`)

func TestMigrationsAvoidReservedColumnNames(t *testing.T) {
	entries, err := fs.ReadDir(".")
	require.NoError(t, err)

	var checked int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(e.Name())
		require.NoError(t, err)
		if m := reservedColumn.FindString(string(b)); m != "" {
			t.Errorf("%s declares reserved identifier %q as a column", e.Name(), strings.TrimSpace(m))
		}
		checked++
	}
	assert.NotZero(t, checked)
}
