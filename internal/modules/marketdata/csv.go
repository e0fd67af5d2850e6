package marketdata

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing the index column.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// ParseDate parses a date in any of the supported index layouts.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "n/a", "nan", "null", "#n/a":
		return true
	}
	return false
}

// ParseCSV decodes a price panel: a header row, the date index in the first
// column and one numeric column per instrument. Rows are returned sorted by date.
func ParseCSV(r io.Reader, locator string) (*PricePanel, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedSourceError{Locator: locator, Reason: "empty source"}
	}
	if err != nil {
		return nil, &MalformedSourceError{Locator: locator, Line: 1, Reason: "invalid header", Err: err}
	}
	if len(header) < 2 {
		return nil, &MalformedSourceError{Locator: locator, Line: 1, Reason: "no instrument columns"}
	}

	columns := make([]string, 0, len(header)-1)
	seen := make(map[string]bool, len(header)-1)
	for _, name := range header[1:] {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &MalformedSourceError{Locator: locator, Line: 1, Reason: "empty column name"}
		}
		if seen[name] {
			return nil, &MalformedSourceError{Locator: locator, Line: 1, Reason: "duplicate column " + strconv.Quote(name)}
		}
		seen[name] = true
		columns = append(columns, name)
	}

	type row struct {
		date   time.Time
		prices []float64
	}
	var rows []row

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &MalformedSourceError{Locator: locator, Line: line, Reason: "invalid record", Err: err}
		}

		date, err := ParseDate(record[0])
		if err != nil {
			return nil, &MalformedSourceError{Locator: locator, Line: line, Reason: "invalid date " + strconv.Quote(record[0]), Err: err}
		}

		prices := make([]float64, len(columns))
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if isMissing(cell) {
				prices[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &MalformedSourceError{Locator: locator, Line: line, Reason: "invalid price for " + columns[i], Err: err}
			}
			prices[i] = v
		}
		rows = append(rows, row{date: date, prices: prices})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].date.Before(rows[j].date)
	})

	panel := &PricePanel{
		Dates:   make([]time.Time, len(rows)),
		Columns: columns,
		Data:    make(map[string][]float64, len(columns)),
	}
	for _, name := range columns {
		panel.Data[name] = make([]float64, len(rows))
	}
	for i, r := range rows {
		panel.Dates[i] = r.date
		for j, name := range columns {
			panel.Data[name][i] = r.prices[j]
		}
	}

	return panel, nil
}
