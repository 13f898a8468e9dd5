// Package marketdata loads and writes OHLCV series as CSV and generates
// synthetic series for offline runs.
package marketdata

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/models"
)

// BarInterval is the spacing assumed for rows without a timestamp column.
const BarInterval = 5 * time.Minute

// Accepted timestamp layouts, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime parses a date/timestamp cell. Unix seconds are also accepted;
// an empty cell gives the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// barRow is one CSV row. Either date or timestamp may carry the time.
type barRow struct {
	Date      string  `csv:"date"`
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// outRow is the written layout.
type outRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// LoadCSV reads an OHLCV series with columns date or timestamp, open, high,
// low, close, volume. Header names are matched case-insensitively. Rows
// without a time get BarInterval spacing from the Unix epoch. The series is
// validated before it is returned.
func LoadCSV(r io.Reader) ([]models.Candle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewDataError("candles", "csv", "read failed", err)
	}
	data = lowerHeader(data)

	var rows []*barRow
	if err := gocsv.Unmarshal(bytes.NewReader(data), &rows); err != nil {
		return nil, apperrors.NewDataError("candles", "csv", "parse failed", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewDataError("candles", "csv", "no rows", apperrors.ErrDataNotFound)
	}

	candles := make([]models.Candle, len(rows))
	for i, row := range rows {
		cell := row.Timestamp
		if strings.TrimSpace(cell) == "" {
			cell = row.Date
		}
		ts, err := parseTime(cell)
		if err != nil {
			return nil, apperrors.NewInputError("timestamp", i, err.Error())
		}
		if ts.IsZero() {
			ts = time.Unix(0, 0).UTC().Add(time.Duration(i) * BarInterval)
		}
		candles[i] = models.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		}
	}

	if err := models.ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// LoadCSVFile opens path and reads it with LoadCSV.
func LoadCSVFile(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("candles", path, "file not found", apperrors.ErrDataNotFound)
		}
		return nil, apperrors.NewDataError("candles", path, "open failed", err)
	}
	defer f.Close()

	return LoadCSV(f)
}

// WriteCSV writes candles with a date, open, high, low, close, volume header.
func WriteCSV(w io.Writer, candles []models.Candle) error {
	rows := make([]*outRow, len(candles))
	for i, c := range candles {
		rows[i] = &outRow{
			Date:   c.Timestamp.UTC().Format(timeLayouts[0]),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return gocsv.Marshal(&rows, w)
}

// WriteCSVFile writes candles to path, replacing any existing file.
func WriteCSVFile(path string, candles []models.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteCSV(f, candles); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// lowerHeader lower-cases the first line so headers like "Close" match.
func lowerHeader(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		end = len(data)
	}
	out := make([]byte, 0, len(data))
	out = append(out, bytes.ToLower(data[:end])...)
	return append(out, data[end:]...)
}
