package ingest

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var errNoDateColumn = errors.New("daily response has no date column")

// columnPositions holds the row positions of the columns ParseDaily reads; -1
// marks a column the response did not include.
type columnPositions struct {
	ticker, date, close int
}

func locateDailyColumns(columns []Column) columnPositions {
	pos := columnPositions{ticker: -1, date: -1, close: -1}
	for i, col := range columns {
		switch col.Name {
		case "ticker":
			pos.ticker = i
		case "date":
			pos.date = i
		case "close":
			pos.close = i
		}
	}
	return pos
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func tickerAt(row []any, i int) string {
	s, _ := cell(row, i).(string)
	return s
}

// dateAt accepts the plain Date type and the timestamp form some tables use.
func dateAt(row []any, i int) (time.Time, bool) {
	s, _ := cell(row, i).(string)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}

func closeAt(row []any, i int) *decimal.Decimal {
	var d decimal.Decimal
	switch v := cell(row, i).(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	case string:
		var err error
		if d, err = decimal.NewFromString(v); err != nil {
			return nil
		}
	default:
		return nil
	}
	return &d
}

// ParseDaily turns a SHARADAR/DAILY page into rows. Rows without a ticker or
// a parsable date are dropped.
func ParseDaily(resp *Response) ([]DailyRow, error) {
	data := resp.Datatable.Data
	pos := locateDailyColumns(resp.Datatable.Columns)
	if pos.date < 0 && len(data) > 0 {
		return nil, errNoDateColumn
	}

	rows := make([]DailyRow, 0, len(data))
	for _, row := range data {
		ticker := tickerAt(row, pos.ticker)
		date, ok := dateAt(row, pos.date)
		if ticker == "" || !ok {
			continue
		}
		rows = append(rows, DailyRow{Ticker: ticker, Date: date, Close: closeAt(row, pos.close)})
	}
	return rows, nil
}
