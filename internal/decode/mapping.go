package decode

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"mltscript/internal/config"
	"mltscript/internal/services"
)

// ErrNoTimestampColumn reports a sheet whose headers name no usable time column.
var ErrNoTimestampColumn = errors.New("no timestamp column")

// ColumnMapping lists, per role, the column indices to read in precedence order.
type ColumnMapping struct {
	Timestamp   []int
	Duration    []int
	Number      []int
	Description []int
	Content     []int
	Speaker     []int
	Action      []int
	Notes       []int
	// FillDescription carries the last non-empty description down across
	// blank cells, which is how merged cells arrive in exports.
	FillDescription bool
}

// HasTime reports whether rows can resolve a timestamp under this mapping.
func (m ColumnMapping) HasTime() bool {
	return len(m.Timestamp) > 0 || len(m.Duration) > 0
}

// Strategy resolves a ColumnMapping once per sheet from its header row.
type Strategy interface {
	Name() string
	Resolve(headers []string) (ColumnMapping, error)
}

// StrategyFor returns the strategy named by a config layout value.
func StrategyFor(layout string, columns config.Columns) Strategy {
	if strings.EqualFold(layout, config.LayoutFixed) {
		return FixedStrategy{Columns: columns}
	}
	return KeywordStrategy{}
}

// FixedStrategy ignores header text and uses configured columns.
type FixedStrategy struct {
	Columns config.Columns
}

func (FixedStrategy) Name() string { return config.LayoutFixed }

func (s FixedStrategy) Resolve([]string) (ColumnMapping, error) {
	m := ColumnMapping{
		Timestamp:       s.Columns.Timestamp,
		Duration:        s.Columns.Duration,
		Number:          s.Columns.Number,
		Description:     s.Columns.Description,
		Content:         s.Columns.Content,
		Speaker:         s.Columns.Speaker,
		Action:          s.Columns.Action,
		Notes:           s.Columns.Notes,
		FillDescription: true,
	}
	if !m.HasTime() {
		return ColumnMapping{}, noTimestampColumn("fixed layout maps neither timestamp nor duration")
	}
	return m, nil
}

type role int

const (
	roleNone role = iota
	roleDuration
	roleNumber
	roleTimestamp
	roleSpeaker
	roleAction
	roleNotes
	roleDescription
	roleContent
)

type roleKeywords struct {
	role     role
	keywords []string
	exact    bool
}

// Checked in order; a header takes the first role it matches, so duration
// headers such as "Thời lượng" never become timestamp columns.
var keywordTable = []roleKeywords{
	{role: roleDuration, keywords: []string{"thời lượng", "độ dài", "duration", "length"}},
	{role: roleNumber, keywords: []string{"stt", "số thứ tự", "số", "#", "no", "no."}, exact: true},
	{role: roleTimestamp, keywords: []string{"timestamp", "timecode", "time", "giờ", "thời", "phút", "giây"}},
	{role: roleSpeaker, keywords: []string{"nhân vật", "người nói", "diễn viên", "speaker", "character"}},
	{role: roleAction, keywords: []string{"hành động", "góc máy", "action", "camera", "shot"}},
	{role: roleNotes, keywords: []string{"ghi chú", "note"}},
	{role: roleDescription, keywords: []string{"phân cảnh", "mô tả", "cảnh", "description", "scene"}},
	{role: roleContent, keywords: []string{"nội dung", "lời thoại", "thoại", "lời", "content", "dialogue", "script", "text"}},
}

// KeywordStrategy scans header text for role keywords after Unicode
// normalization and case folding.
type KeywordStrategy struct{}

func (KeywordStrategy) Name() string { return config.LayoutKeyword }

func (KeywordStrategy) Resolve(headers []string) (ColumnMapping, error) {
	folder := cases.Fold()
	var m ColumnMapping
	for idx, header := range headers {
		normalized := strings.TrimSpace(folder.String(norm.NFC.String(header)))
		if normalized == "" {
			continue
		}
		switch classify(normalized) {
		case roleDuration:
			m.Duration = append(m.Duration, idx)
		case roleNumber:
			m.Number = append(m.Number, idx)
		case roleTimestamp:
			m.Timestamp = append(m.Timestamp, idx)
		case roleSpeaker:
			m.Speaker = append(m.Speaker, idx)
		case roleAction:
			m.Action = append(m.Action, idx)
		case roleNotes:
			m.Notes = append(m.Notes, idx)
		case roleDescription:
			m.Description = append(m.Description, idx)
		case roleContent:
			m.Content = append(m.Content, idx)
		}
	}
	if !m.HasTime() {
		return ColumnMapping{}, noTimestampColumn(fmt.Sprintf("no header matched a timestamp or duration keyword (headers: %s)", strings.Join(headers, ", ")))
	}
	return m, nil
}

func classify(header string) role {
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if entry.exact {
				if header == kw {
					return entry.role
				}
				continue
			}
			if strings.Contains(header, kw) {
				return entry.role
			}
		}
	}
	return roleNone
}

func noTimestampColumn(message string) error {
	return services.Wrap(services.ErrParse, "decode", "resolve columns", message, ErrNoTimestampColumn)
}
