package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"mltscript/internal/config"
	"mltscript/internal/credentials"
	"mltscript/internal/sheets"
	"mltscript/internal/testsupport"
)

const scriptCSV = "STT,Thời lượng,Phân cảnh,Lời thoại\n" +
	"1,5s,Intro,Xin chào\n" +
	"2,10s,,\"Hôm nay, chúng ta\"\n" +
	"3,1 phút,Demo,Bắt đầu\n" +
	",,,\n" +
	"4,30,Demo,Kết thúc\n"

func fixedClock() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

func newService(t *testing.T, f *testsupport.FakeGoogle, opts ...testsupport.ConfigOption) *Service {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithFakeGoogle(f)}, opts...)...)
	svc := New(cfg, nil, WithHTTPClient(f.Client()), WithClock(fixedClock))
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = svc.Dispose() })
	return svc
}

func TestLoadScriptsViaCSV(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", scriptCSV)
	svc := newService(t, f)

	res := svc.LoadScripts(context.Background())
	if res.Outcome != OutcomeOK || res.Transport != sheets.TransportCSV {
		t.Fatalf("unexpected result: %s via %s (%+v)", res.Outcome, res.Transport, res.Diagnostics)
	}
	if len(res.Scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %d", len(res.Scripts))
	}
	intro, demo := res.Scripts[0], res.Scripts[1]
	if intro.Title != "Intro" || len(intro.Scenes) != 2 {
		t.Fatalf("unexpected intro script: %+v", intro)
	}
	if intro.Scenes[0].Content != "Xin chào" || intro.Scenes[0].DurationSeconds != 5 {
		t.Fatalf("unexpected first scene: %+v", intro.Scenes[0])
	}
	if intro.Scenes[1].Content != "Hôm nay, chúng ta" {
		t.Fatalf("expected quoted comma kept, got %q", intro.Scenes[1].Content)
	}
	if demo.TotalDuration != "1:45" {
		t.Fatalf("expected cumulative total duration 1:45, got %q", demo.TotalDuration)
	}
	if res.Stats.Blank != 1 || res.Stats.RowsKept != 4 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
	if !strings.HasPrefix(res.Summary(), "loaded 2 scripts (4 scenes) via csv") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}

	runs, err := svc.History().Recent(context.Background(), 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d (%v)", len(runs), err)
	}
	if runs[0].ID != res.RunID || runs[0].SceneCount != 4 || runs[0].Transport != "csv" {
		t.Fatalf("unexpected history run: %+v", runs[0])
	}
	if last, ok := svc.Last(); !ok || last.RunID != res.RunID {
		t.Fatal("expected Last to return the latest result")
	}
}

func TestLoadScriptsIsIdempotent(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", scriptCSV)
	svc := newService(t, f)

	first := svc.LoadScripts(context.Background())
	second := svc.LoadScripts(context.Background())
	if len(first.Scripts) != len(second.Scripts) {
		t.Fatalf("script count changed: %d vs %d", len(first.Scripts), len(second.Scripts))
	}
	for i := range first.Scripts {
		a, b := first.Scripts[i], second.Scripts[i]
		if a.ID != b.ID || len(a.Scenes) != len(b.Scenes) || a.TotalDuration != b.TotalDuration {
			t.Fatalf("script %d differs between loads", i)
		}
	}
}

func TestLoadScriptsKeepsCreatedAtAcrossLoads(t *testing.T) {
	for _, withHistory := range []bool{true, false} {
		name := "memory"
		if withHistory {
			name = "history"
		}
		t.Run(name, func(t *testing.T) {
			f := testsupport.NewFakeGoogle(t)
			f.SetCSV("0", scriptCSV)
			cfg := testsupport.NewConfig(t, testsupport.WithFakeGoogle(f), testsupport.WithHistory(withHistory))
			now := fixedClock()
			tick := func() time.Time {
				now = now.Add(time.Minute)
				return now
			}
			svc := New(cfg, nil, WithHTTPClient(f.Client()), WithClock(tick))
			if err := svc.Init(context.Background()); err != nil {
				t.Fatalf("Init: %v", err)
			}
			t.Cleanup(func() { _ = svc.Dispose() })

			first := svc.LoadScripts(context.Background())
			second := svc.LoadScripts(context.Background())
			if len(first.Scripts) == 0 || len(first.Scripts) != len(second.Scripts) {
				t.Fatalf("unexpected script counts: %d vs %d", len(first.Scripts), len(second.Scripts))
			}
			for i := range first.Scripts {
				a, b := first.Scripts[i], second.Scripts[i]
				if a.CreatedAt != b.CreatedAt {
					t.Fatalf("script %q createdAt changed: %s -> %s", a.Title, a.CreatedAt, b.CreatedAt)
				}
				if a.UpdatedAt == b.UpdatedAt {
					t.Fatalf("script %q updatedAt should follow the load time", a.Title)
				}
			}
		})
	}
}

func TestLoadScriptsTotalFailure(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetHTML("0")
	f.SetHTML("123")
	svc := newService(t, f, testsupport.WithGIDs("0", "123"))

	res := svc.LoadScripts(context.Background())
	if res.Scripts == nil || len(res.Scripts) != 0 {
		t.Fatalf("expected empty non-nil scripts, got %#v", res.Scripts)
	}
	if res.Outcome != OutcomeFailure || res.Connected() {
		t.Fatalf("unexpected outcome %s (connected=%v)", res.Outcome, res.Connected())
	}
	perGID := map[string]int{}
	for _, d := range res.Diagnostics {
		if d.Transport == string(sheets.TransportCSV) {
			perGID[d.GID]++
		}
	}
	if perGID["0"] != 1 || perGID["123"] != 1 {
		t.Fatalf("expected one diagnostic per gid candidate, got %v", perGID)
	}
	if res.Diagnostics[len(res.Diagnostics)-1].Kind != KindTotal {
		t.Fatalf("expected trailing total diagnostic, got %+v", res.Diagnostics)
	}
	if !strings.HasPrefix(res.Summary(), "not connected") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}
}

func TestLoadScriptsConnectedButEmpty(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", "STT,Thời lượng,Phân cảnh,Lời thoại\n")
	svc := newService(t, f)

	res := svc.LoadScripts(context.Background())
	if res.Outcome != OutcomeOK || !res.Connected() || len(res.Scripts) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Summary(), "has no scenes") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}
}

func TestLoadScriptsViaAPIWithSignedInUser(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.AcceptToken("tok")
	f.AddTab(testsupport.FakeTab{ID: 0, Title: "VLU-KỊCH BẢN", Values: [][]string{
		{"Giờ", "Nhân vật", "Nội dung", "Phân cảnh"},
		{"00:00:01.5", "MC", "Chào mừng", "Mở đầu"},
		{"00:00:09", "Khách", "Cảm ơn", "Mở đầu"},
		{"sai", "MC", "bỏ qua", "Mở đầu"},
	}})
	svc := newService(t, f)
	if err := svc.Session().Store().Save(credentials.Credential{
		AccessToken:       "tok",
		ExpiryEpochMillis: time.Now().Add(time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res := svc.LoadScripts(context.Background())
	if res.Transport != sheets.TransportAPI {
		t.Fatalf("expected api transport, got %s (%+v)", res.Transport, res.Diagnostics)
	}
	if res.Outcome != OutcomePartial {
		t.Fatalf("expected partial outcome for dropped row, got %s", res.Outcome)
	}
	if len(res.Scripts) != 1 || len(res.Scripts[0].Scenes) != 2 {
		t.Fatalf("unexpected scripts: %+v", res.Scripts)
	}
	scene := res.Scripts[0].Scenes[0]
	if scene.Speaker != "MC" || scene.Timestamp.Milliseconds != 500 {
		t.Fatalf("unexpected scene: %+v", scene)
	}
	if f.CountRequests("/spreadsheets/d/") != 0 {
		t.Fatal("csv export should not be used after api success")
	}
}

func TestLoadScriptsRefreshesExpiredCredential(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.AcceptRefresh("refresh-1")
	f.AddTab(testsupport.FakeTab{ID: 0, Title: "Sheet1", Values: [][]string{{"Timestamp", "Content"}, {"00:01", "hi"}}})
	svc := newService(t, f)
	if err := svc.Session().Store().Save(credentials.Credential{
		AccessToken:       "expired",
		ExpiryEpochMillis: time.Now().Add(-time.Hour).UnixMilli(),
		RefreshToken:      "refresh-1",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res := svc.LoadScripts(context.Background())
	if res.Transport != sheets.TransportAPI || res.Outcome != OutcomeOK {
		t.Fatalf("expected refreshed api read, got %s/%s (%+v)", res.Transport, res.Outcome, res.Diagnostics)
	}
	if f.RefreshCount() != 1 {
		t.Fatalf("expected one refresh, got %d", f.RefreshCount())
	}
}

func TestLoadScriptsRejectedCredentialFallsBack(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.AcceptToken("current")
	f.SetCSV("0", scriptCSV)
	svc := newService(t, f)
	_ = svc.Session().Store().Save(credentials.Credential{
		AccessToken:       "revoked",
		ExpiryEpochMillis: time.Now().Add(time.Hour).UnixMilli(),
	})

	res := svc.LoadScripts(context.Background())
	if res.Transport != sheets.TransportCSV || res.Outcome != OutcomePartial {
		t.Fatalf("expected degraded csv read, got %s/%s", res.Transport, res.Outcome)
	}
	if res.Diagnostics[0].Kind != KindCredential {
		t.Fatalf("expected credential diagnostic, got %+v", res.Diagnostics)
	}
	if svc.Session().Store().IsValid() {
		t.Fatal("rejected credential should be cleared")
	}
}

func TestLoadScriptsWithoutSheetID(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	svc := newService(t, f, testsupport.WithSheetID(""))

	res := svc.LoadScripts(context.Background())
	if res.Outcome != OutcomeFailure || len(f.Requests()) != 0 {
		t.Fatalf("expected configuration failure without network, got %s (%d requests)", res.Outcome, len(f.Requests()))
	}
	if !strings.HasPrefix(res.Summary(), "not configured") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}
}

func TestLoadScriptsKeywordLayoutWithoutTimeColumn(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", "Tên,Ghi chú\na,b\n")
	svc := newService(t, f, testsupport.WithLayouts(config.LayoutKeyword, config.LayoutKeyword))

	res := svc.LoadScripts(context.Background())
	if res.Outcome != OutcomeFailure || !res.Connected() {
		t.Fatalf("expected connected failure, got %s", res.Outcome)
	}
	if !strings.Contains(res.Summary(), "no rows could be decoded") {
		t.Fatalf("unexpected summary %q", res.Summary())
	}
}

type panicFetcher struct{}

func (panicFetcher) FetchRows(context.Context, sheets.SheetRef) sheets.FetchResult {
	panic("boom")
}

func TestLoadScriptsRecoversPanics(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistory(false))
	svc := New(cfg, nil, WithFetcher(panicFetcher{}))

	res := svc.LoadScripts(context.Background())
	if res.Outcome != OutcomeFailure || res.Scripts == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Diagnostics[len(res.Diagnostics)-1].Kind != KindInternal {
		t.Fatalf("expected internal diagnostic, got %+v", res.Diagnostics)
	}
}

func TestGroupingConfig(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", scriptCSV)
	svc := newService(t, f)
	svc.cfg.Sheet.GroupBy = config.GroupByBucket
	svc.cfg.Sheet.BucketSeconds = 60

	res := svc.LoadScripts(context.Background())
	if len(res.Scripts) != 2 || res.Scripts[0].Title != "0:00-1:00" || res.Scripts[1].Title != "1:00-2:00" {
		titles := make([]string, 0, len(res.Scripts))
		for _, s := range res.Scripts {
			titles = append(titles, s.Title)
		}
		t.Fatalf("unexpected bucket titles: %v", titles)
	}
}
