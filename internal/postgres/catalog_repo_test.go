package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunClient builds statements without a server and records the last
// query SQL.
func dryRunClient(t *testing.T) (*Client, *string) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=posbridge dbname=posbridge sslmode=disable",
	}), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	var lastSQL string
	err = db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		lastSQL = tx.Statement.SQL.String()
	})
	require.NoError(t, err)
	return NewClientWith(db), &lastSQL
}

func TestCatalogRepo_LoadQuery(t *testing.T) {
	client, lastSQL := dryRunClient(t)

	rows, err := NewCatalogRepo(client).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, *lastSQL, `FROM "catalog_mappings"`)
	assert.Contains(t, *lastSQL, "iiko_product_id <> ''")
	assert.Contains(t, *lastSQL, "ORDER BY city, id")
}
