package clickhouse

import (
	"time"

	"github.com/shopspring/decimal"

	"posbridge/models"
)

// SyncLogRow is one pos_order_sync_log record.
type SyncLogRow struct {
	RequestID      string
	Event          string
	City           string
	ExternalNumber string
	POSOrderID     string
	MappedItems    uint16
	UnmappedItems  uint16
	Paid           uint8
	Total          decimal.Decimal
	Error          string
	OccurredAt     time.Time
}

// RowFromEvent converts an event into its sync log row. An unparsable or
// missing total is stored as zero.
func RowFromEvent(evt models.OrderSyncEvent) SyncLogRow {
	total, err := decimal.NewFromString(evt.Total)
	if err != nil {
		total = decimal.Zero
	}
	row := SyncLogRow{
		RequestID:      evt.RequestID,
		Event:          evt.Event,
		City:           evt.City,
		ExternalNumber: evt.ExternalNumber,
		POSOrderID:     evt.POSOrderID,
		MappedItems:    clampUint16(evt.MappedItems),
		UnmappedItems:  clampUint16(evt.UnmappedItems),
		Total:          total.Round(2),
		Error:          evt.Error,
		OccurredAt:     evt.OccurredAt,
	}
	if evt.Paid {
		row.Paid = 1
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now()
	}
	return row
}

func clampUint16(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 65535:
		return 65535
	}
	return uint16(n)
}
