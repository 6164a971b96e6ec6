package decode

import (
	"errors"
	"testing"

	"mltscript/internal/config"
	"mltscript/internal/logging"
	"mltscript/internal/services"
)

func TestKeywordStrategyPicksTimeColumn(t *testing.T) {
	d := New(KeywordStrategy{}, logging.NewNop())
	got, stats := d.Decode(
		[]string{"hdr1", "Giờ", "content"},
		[][]string{{"x", "14:43:23.086", "hello"}},
	)
	if stats.Err != nil {
		t.Fatalf("unexpected error: %v", stats.Err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	c := got[0]
	if c.TimestampString != "14:43:23.086" || c.Content != "hello" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Timestamp.Hours != 14 || c.Timestamp.Milliseconds != 86 {
		t.Fatalf("unexpected timestamp: %+v", c.Timestamp)
	}
	if c.Row != 1 {
		t.Fatalf("expected row 1, got %d", c.Row)
	}
}

func TestDurationSheet(t *testing.T) {
	headers := []string{"STT", "Thời lượng", "Phân cảnh", "Lời thoại"}
	rows := [][]string{{"1", "5s", "Intro", "Xin chào"}}

	strategies := []Strategy{KeywordStrategy{}, FixedStrategy{Columns: config.DefaultColumns()}}
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			got, stats := New(strategy, nil).Decode(headers, rows)
			if stats.Err != nil || len(got) != 1 {
				t.Fatalf("expected one candidate, got %d (err %v)", len(got), stats.Err)
			}
			c := got[0]
			if c.Content != "Xin chào" || c.Description != "Intro" || c.DurationSeconds != 5 {
				t.Fatalf("unexpected candidate: %+v", c)
			}
			if c.Number != "1" {
				t.Fatalf("expected number 1, got %q", c.Number)
			}
			if c.TimestampString != "00:00:05.000" {
				t.Fatalf("expected synthesized offset, got %q", c.TimestampString)
			}
		})
	}
}

func TestFixedStrategyFillsDescriptionAndAccumulates(t *testing.T) {
	rows := [][]string{
		{"1", "10", "Mở đầu", "", "Chào các bạn"},
		{"2", "1 phút", "", "Nội dung chính"},
		{},
		{"3", "", "Kết", "Tạm biệt"},
		{"4", "30s", "", "", "Hẹn gặp lại", "ghi chú", "cắt"},
	}
	got, stats := New(FixedStrategy{Columns: config.DefaultColumns()}, nil).Decode(nil, rows)
	if stats.RowsSeen != 5 || stats.Blank != 1 || stats.Dropped != 1 || stats.RowsKept != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	want := []struct {
		ts, description, content string
	}{
		{"00:00:10.000", "Mở đầu", "Chào các bạn"},
		{"00:01:10.000", "Mở đầu", "Nội dung chính"},
		{"00:01:40.000", "Kết", "Hẹn gặp lại"},
	}
	for i, w := range want {
		c := got[i]
		if c.TimestampString != w.ts || c.Description != w.description || c.Content != w.content {
			t.Fatalf("row %d: got %+v, want %+v", i, c, w)
		}
	}
	if got[2].Notes != "ghi chú" || got[2].Action != "cắt" {
		t.Fatalf("expected notes and action from fixed columns, got %+v", got[2])
	}
}

func TestKeywordStrategyWithoutTimeColumn(t *testing.T) {
	got, stats := New(KeywordStrategy{}, nil).Decode(
		[]string{"Tên", "Nội dung"},
		[][]string{{"a", "b"}, {"c", "d"}},
	)
	if got != nil {
		t.Fatalf("expected no candidates, got %+v", got)
	}
	if !errors.Is(stats.Err, ErrNoTimestampColumn) || !errors.Is(stats.Err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", stats.Err)
	}
	if stats.Dropped != 2 {
		t.Fatalf("expected all rows dropped, got %+v", stats)
	}
}

func TestRaggedRowsReadAsEmpty(t *testing.T) {
	got, stats := New(KeywordStrategy{}, nil).Decode(
		[]string{"Timestamp", "Speaker", "Dialogue", "Notes"},
		[][]string{
			{"00:01"},
			{"bad", "Host", "dropped"},
			{"00:02,5", "Guest", "hi", "n"},
		},
	)
	if stats.RowsKept != 2 || stats.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if got[0].Speaker != "" || got[0].Content != "" {
		t.Fatalf("expected empty cells, got %+v", got[0])
	}
	if got[1].Timestamp.Milliseconds != 500 || got[1].Speaker != "Guest" || got[1].Notes != "n" {
		t.Fatalf("unexpected candidate: %+v", got[1])
	}
	if got[1].Row != 3 {
		t.Fatalf("expected original row position, got %d", got[1].Row)
	}
}

func TestKeywordResolvePrecedence(t *testing.T) {
	m, err := KeywordStrategy{}.Resolve([]string{"THỜI GIAN", "Nội dung 1", "Nội dung 2", "Mô tả", "Thời lượng", "#"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(m.Timestamp) != 1 || m.Timestamp[0] != 0 {
		t.Fatalf("unexpected timestamp columns: %v", m.Timestamp)
	}
	if len(m.Content) != 2 || m.Content[0] != 1 || m.Content[1] != 2 {
		t.Fatalf("unexpected content columns: %v", m.Content)
	}
	if len(m.Duration) != 1 || m.Duration[0] != 4 {
		t.Fatalf("duration header should not be a timestamp column: %+v", m)
	}
	if len(m.Number) != 1 || len(m.Description) != 1 {
		t.Fatalf("unexpected mapping: %+v", m)
	}
}

func TestFixedStrategyRequiresTimeColumn(t *testing.T) {
	_, err := FixedStrategy{Columns: config.Columns{Content: []int{0}}}.Resolve(nil)
	if !errors.Is(err, ErrNoTimestampColumn) {
		t.Fatalf("expected ErrNoTimestampColumn, got %v", err)
	}
}

func TestStrategyFor(t *testing.T) {
	if StrategyFor("FIXED", config.DefaultColumns()).Name() != config.LayoutFixed {
		t.Fatal("expected fixed strategy")
	}
	if StrategyFor("", config.Columns{}).Name() != config.LayoutKeyword {
		t.Fatal("expected keyword strategy by default")
	}
}
