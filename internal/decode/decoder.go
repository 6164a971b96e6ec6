package decode

import (
	"log/slog"
	"strings"

	"mltscript/internal/logging"
	"mltscript/internal/scripts"
	"mltscript/internal/timestamp"
)

// Stats summarizes one Decode call.
type Stats struct {
	Strategy string `json:"strategy"`
	RowsSeen int    `json:"rowsSeen"`
	RowsKept int    `json:"rowsKept"`
	Dropped  int    `json:"rowsDropped"`
	Blank    int    `json:"rowsBlank"`
	Err      error  `json:"-"`
}

// Decoder turns raw sheet rows into timestamped candidates.
type Decoder struct {
	strategy Strategy
	logger   *slog.Logger
}

// New builds a Decoder. A nil strategy falls back to keyword matching.
func New(strategy Strategy, logger *slog.Logger) *Decoder {
	if strategy == nil {
		strategy = KeywordStrategy{}
	}
	return &Decoder{
		strategy: strategy,
		logger:   logging.NewComponentLogger(logger, "decode"),
	}
}

// Decode resolves the column mapping from headers, then reads every row.
// Missing cells read as empty strings; rows with no resolvable timestamp are
// dropped. A mapping failure yields no candidates and is reported in Stats.Err.
func (d *Decoder) Decode(headers []string, rows [][]string) ([]scripts.Candidate, Stats) {
	stats := Stats{Strategy: d.strategy.Name(), RowsSeen: len(rows)}

	mapping, err := d.strategy.Resolve(headers)
	if err != nil {
		stats.Err = err
		stats.Dropped = len(rows)
		logging.WarnWithContext(d.logger, "sheet has no usable time column", "decode_no_timestamp_column",
			logging.String("layout", stats.Strategy),
			logging.Int("rows_seen", stats.RowsSeen),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rename a header to include 'thời gian' or 'timestamp', or switch to the fixed layout"),
			logging.String(logging.FieldImpact, "no scenes were produced from this sheet"))
		return nil, stats
	}

	var (
		out             []scripts.Candidate
		lastDescription string
		runningMillis   int64
	)
	for i, row := range rows {
		if isBlank(row) {
			stats.Blank++
			continue
		}

		description := cell(row, mapping.Description)
		if mapping.FillDescription {
			if description == "" {
				description = lastDescription
			} else {
				lastDescription = description
			}
		}

		duration, hasDuration := timestamp.ParseDurationSeconds(cell(row, mapping.Duration))
		if hasDuration {
			runningMillis += int64(duration) * 1000
		}

		rawTS := cell(row, mapping.Timestamp)
		ts, ok := timestamp.Parse(rawTS)
		if !ok && hasDuration {
			ts = timestamp.FromMilliseconds(runningMillis)
			rawTS = ts.String()
			ok = true
		}
		if !ok {
			stats.Dropped++
			d.logger.Debug("dropped row without timestamp",
				logging.Int("row", i+1),
				logging.String("raw_timestamp", rawTS))
			continue
		}

		out = append(out, scripts.Candidate{
			Row:             i + 1,
			Timestamp:       ts,
			TimestampString: rawTS,
			Content:         cell(row, mapping.Content),
			Description:     description,
			Speaker:         cell(row, mapping.Speaker),
			Action:          cell(row, mapping.Action),
			Notes:           cell(row, mapping.Notes),
			DurationSeconds: duration,
			Number:          cell(row, mapping.Number),
		})
	}
	stats.RowsKept = len(out)

	d.logger.Info("decoded sheet rows",
		logging.String(logging.FieldEventType, "decode_complete"),
		logging.String("layout", stats.Strategy),
		logging.Int("rows_seen", stats.RowsSeen),
		logging.Int("rows_kept", stats.RowsKept),
		logging.Int("rows_dropped", stats.Dropped))
	return out, stats
}

// cell returns the first non-empty trimmed value among the given columns.
func cell(row []string, columns []int) string {
	for _, idx := range columns {
		if idx < 0 || idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			return v
		}
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
