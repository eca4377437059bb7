package database

import (
	"testing"
	"time"

	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
)

func TestFindingFilterEmpty(t *testing.T) {
	clauses, bindVars := findingFilter(store.FindingFilter{})
	assert.Empty(t, clauses)
	assert.Empty(t, bindVars)
}

func TestFindingFilterAll(t *testing.T) {
	clauses, bindVars := findingFilter(store.FindingFilter{
		Keys:       []string{"a", "b"},
		ProductKey: "acme-api",
		ActiveOnly: true,
		WithVulnID: true,
	})
	assert.Contains(t, clauses, "FILTER f._key IN @keys")
	assert.Contains(t, clauses, "FILTER f.active == true")
	assert.Contains(t, clauses, "f.vuln_id_from_tool")
	assert.Contains(t, clauses, "FILTER productKey == @productKey")
	assert.Equal(t, map[string]interface{}{
		"keys":       []string{"a", "b"},
		"productKey": "acme-api",
	}, bindVars)
}

func TestIndexList(t *testing.T) {
	names := map[string]bool{}
	for _, idx := range idxList {
		assert.False(t, names[idx.IdxName], "duplicate index %s", idx.IdxName)
		names[idx.IdxName] = true
		assert.Contains(t, collectionNames, idx.Collection, idx.IdxName)
		assert.NotEmpty(t, idx.IdxFields, idx.IdxName)
	}
	assert.True(t, names["alert_dedup_unique"])
	assert.True(t, names["finding_unique_id_unique"])
}

func TestLatestSyncOrdersByTimestamp(t *testing.T) {
	// lexical order of RFC3339Nano strings is not chronological
	earlier := time.Date(2025, 1, 1, 10, 0, 0, 500_000_000, time.UTC).Format(time.RFC3339Nano)
	later := time.Date(2025, 1, 1, 10, 0, 0, 510_000_000, time.UTC).Format(time.RFC3339Nano)
	assert.Greater(t, earlier, later)

	assert.Contains(t, latestSyncQuery, "SORT DATE_TIMESTAMP(r.last_synced_at) DESC")
}
