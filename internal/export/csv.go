// Package export writes retained samples in downloadable formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/and161185/biasmeter/model"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Header is the first CSV row.
var Header = []string{"Timestamp", "Fairness Score (%)", "Bias Score (%)", "Male Rate (%)", "Female Rate (%)"}

// WriteCSV writes a header and one row per sample. Numbers have two decimals.
func WriteCSV(w io.Writer, samples []model.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range samples {
		if err := cw.Write(Row(s)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row formats one sample.
func Row(s model.Sample) []string {
	return []string{
		s.Timestamp.UTC().Format(TimestampLayout),
		num(s.Value),
		num(s.BiasScore()),
		num(s.MaleRate),
		num(s.FemaleRate),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// CSVFilename is the download name for an export made at now.
func CSVFilename(now time.Time) string {
	return "bias-data-" + now.UTC().Format(time.DateOnly) + ".csv"
}
