package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaIsOrderedAndIdempotent(t *testing.T) {
	entries, err := schemaFS.ReadDir("schema")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())

		body, err := schemaFS.ReadFile("schema/" + e.Name())
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(body), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			assert.Contains(t, stmt, "IF NOT EXISTS", "%s: statement must be safe to rerun", e.Name())
		}
	}
	assert.Equal(t, []string{"001_services.sql", "002_orders.sql", "003_order_events.sql"}, names)
}
