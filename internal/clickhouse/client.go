package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"posbridge/config"
	"posbridge/models"
)

type Client struct {
	conn     driver.Conn
	database string
}

func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		DialTimeout:  10 * time.Second,
	}

	// 8443 is the TLS port of managed deployments
	if cfg.Port == 8443 {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{
		conn:     conn,
		database: cfg.Database,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureSchema creates the sync log tables when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaStatements(c.database) {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create sync log schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(db string) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.pos_order_sync_log (
			request_id String,
			event LowCardinality(String),
			city LowCardinality(String),
			external_number String,
			pos_order_id String,
			mapped_items UInt16,
			unmapped_items UInt16,
			paid UInt8,
			total Decimal(18, 2),
			error String,
			occurred_at DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (city, occurred_at, request_id)
	`, db),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.pos_unmapped_items (
			request_id String,
			city LowCardinality(String),
			name String,
			modifier String,
			raw String,
			occurred_at DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (city, name, occurred_at)
	`, db),
	}
}

// InsertSyncEvent appends one row to the sync log.
func (c *Client) InsertSyncEvent(ctx context.Context, row SyncLogRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.pos_order_sync_log (
			request_id, event, city, external_number, pos_order_id,
			mapped_items, unmapped_items, paid, total, error, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.database)

	return c.conn.Exec(ctx, query,
		row.RequestID,
		row.Event,
		row.City,
		row.ExternalNumber,
		row.POSOrderID,
		row.MappedItems,
		row.UnmappedItems,
		row.Paid,
		row.Total,
		row.Error,
		row.OccurredAt,
	)
}

// InsertUnmappedItems writes the unmatched product lines of one event as a
// single batch.
func (c *Client) InsertUnmappedItems(ctx context.Context, evt models.OrderSyncEvent) error {
	if len(evt.Unmapped) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.pos_unmapped_items (request_id, city, name, modifier, raw, occurred_at)", c.database))
	if err != nil {
		return fmt.Errorf("failed to prepare unmapped batch: %w", err)
	}
	for _, u := range evt.Unmapped {
		if err := batch.Append(evt.RequestID, evt.City, u.Name, u.ModifierText, u.Raw, evt.OccurredAt); err != nil {
			return fmt.Errorf("failed to append unmapped row: %w", err)
		}
	}
	return batch.Send()
}

func (c *Client) Conn() driver.Conn {
	return c.conn
}
