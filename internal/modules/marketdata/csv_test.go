package marketdata

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Date,.SPX,.VIX,GLD
2017-01-04,2270.75,11.85,110.47
2017-01-03,2257.83,12.85,110.47
2017-01-05,2269.00,,112.65
2017-01-06,2276.98,11.32,NA
`

func TestParseCSV_SortsRowsAndMarksMissing(t *testing.T) {
	panel, err := ParseCSV(strings.NewReader(sampleCSV), "sample.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{".SPX", ".VIX", "GLD"}, panel.Columns)
	require.Equal(t, 4, panel.Rows())
	assert.True(t, panel.Dates[0].Equal(time.Date(2017, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.True(t, panel.Dates[3].Equal(time.Date(2017, 1, 6, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, 2257.83, panel.Data[".SPX"][0])
	assert.Equal(t, 2270.75, panel.Data[".SPX"][1])
	assert.True(t, math.IsNaN(panel.Data[".VIX"][2]))
	assert.True(t, math.IsNaN(panel.Data["GLD"][3]))
	assert.Equal(t, 1, panel.Missing(".VIX"))
	assert.True(t, panel.HasColumn("GLD"))
	assert.False(t, panel.HasColumn("AAPL.O"))
}

func TestParseCSV_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
		line   int
	}{
		{"empty", "", "empty source", 0},
		{"no instruments", "Date\n2017-01-03\n", "no instrument columns", 1},
		{"duplicate column", "Date,A,A\n", "duplicate column", 1},
		{"bad date", "Date,A\nyesterday,1.0\n", "invalid date", 2},
		{"bad number", "Date,A\n2017-01-03,abc\n", "invalid price for A", 2},
		{"ragged row", "Date,A,B\n2017-01-03,1.0\n", "invalid record", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tc.input), "bad.csv")
			require.Error(t, err)

			var malformed *MalformedSourceError
			require.True(t, errors.As(err, &malformed), "expected MalformedSourceError, got %T", err)
			assert.Equal(t, "bad.csv", malformed.Locator)
			assert.Equal(t, tc.line, malformed.Line)
			assert.Contains(t, malformed.Reason, tc.reason)
		})
	}
}

func TestParseDate_Layouts(t *testing.T) {
	for _, value := range []string{"2017-01-03", "2017-01-03 00:00:00", "2017-01-03T00:00:00Z", "2017/01/03"} {
		d, err := ParseDate(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2017, d.Year())
		assert.Equal(t, time.January, d.Month())
		assert.Equal(t, 3, d.Day())
	}

	_, err := ParseDate("03.01.2017")
	assert.Error(t, err)
}
