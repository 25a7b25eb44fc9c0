package ingest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Response is a Nasdaq Data Link Tables API page. Rows are positional
// arrays described by Columns.
type Response struct {
	Datatable struct {
		Data    [][]any  `json:"data"`
		Columns []Column `json:"columns"`
	} `json:"datatable"`
	Meta struct {
		NextCursorID *string `json:"next_cursor_id"`
	} `json:"meta"`
}

// Column names one position of a Datatable row.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DailyRow is the part of a SHARADAR/DAILY row reconciliation needs. Close
// is nil when the table has no close for that day.
type DailyRow struct {
	Ticker string
	Date   time.Time
	Close  *decimal.Decimal
}
