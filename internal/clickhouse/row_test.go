package clickhouse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"posbridge/models"
)

func TestRowFromEvent(t *testing.T) {
	at := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	row := RowFromEvent(models.OrderSyncEvent{
		Event:         models.SyncEventCreated,
		RequestID:     "r1",
		City:          "msk",
		MappedItems:   2,
		UnmappedItems: -1,
		Paid:          true,
		Total:         "15.505",
		OccurredAt:    at,
	})
	assert.Equal(t, uint8(1), row.Paid)
	assert.Equal(t, uint16(2), row.MappedItems)
	assert.Equal(t, uint16(0), row.UnmappedItems)
	assert.Equal(t, "15.51", row.Total.StringFixed(2))
	assert.Equal(t, at, row.OccurredAt)
}

func TestRowFromEvent_Defaults(t *testing.T) {
	row := RowFromEvent(models.OrderSyncEvent{MappedItems: 70000})
	assert.True(t, row.Total.IsZero())
	assert.Equal(t, uint16(65535), row.MappedItems)
	assert.False(t, row.OccurredAt.IsZero())
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("posbridge")
	assert.Len(t, stmts, 2)
	assert.True(t, strings.Contains(stmts[0], "posbridge.pos_order_sync_log"))
	assert.True(t, strings.Contains(stmts[1], "posbridge.pos_unmapped_items"))
}
