package main

import (
	"encoding/json"
	"testing"

	"mltscript/internal/history"
	"mltscript/internal/ingest"
	"mltscript/internal/testsupport"
)

const sampleSheet = "STT,Thời lượng,Phân cảnh,Lời thoại\n" +
	"1,5s,Intro,Xin chào\n" +
	"2,10s,,Giới thiệu\n" +
	"3,20s,Demo,Bắt đầu\n"

func TestLoadCommandTable(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetCSV("0", sampleSheet)

	out, _, err := runCLI(t, []string{"load", "--scenes"}, env.configPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	requireContains(t, out, "loaded 2 scripts (3 scenes) via csv")
	requireContains(t, out, "Intro")
	requireContains(t, out, "Giới thiệu")
}

func TestLoadCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetCSV("0", sampleSheet)

	out, _, err := runCLI(t, []string{"load", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("load --json: %v", err)
	}
	var result ingest.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if result.Outcome != ingest.OutcomeOK || len(result.Scripts) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoadCommandDegradesWithoutError(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetHTML("0")

	out, _, err := runCLI(t, []string{"load"}, env.configPath)
	if err != nil {
		t.Fatalf("load should not fail without --strict: %v", err)
	}
	requireContains(t, out, "not connected")
	requireContains(t, out, "csv gid 0")

	if _, _, err := runCLI(t, []string{"load", "--strict"}, env.configPath); err == nil {
		t.Fatal("expected --strict to fail on total failure")
	}
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetCSV("0", sampleSheet)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No ingestion runs recorded yet")

	for range 2 {
		if _, _, err := runCLI(t, []string{"load"}, env.configPath); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	out, _, err = runCLI(t, []string{"history", "--json", "-n", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []history.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 || runs[0].SceneCount != 3 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestHistoryCommandDisabled(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistory(false))
	if _, _, err := runCLI(t, []string{"history"}, env.configPath); err == nil {
		t.Fatal("expected error when history is disabled")
	}
}

func TestAuthCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLIWithInput(t, []string{"auth", "login"}, env.configPath, "pasted-code\n")
	if err != nil {
		t.Fatalf("auth login: %v", err)
	}
	requireContains(t, out, "/o/oauth2/auth?")
	requireContains(t, out, "Signed in as editor@example.com")

	out, _, err = runCLI(t, []string{"auth", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("auth status: %v", err)
	}
	requireContains(t, out, "editor@example.com")
	requireContains(t, out, "yes")

	if _, _, err := runCLI(t, []string{"auth", "logout"}, env.configPath); err != nil {
		t.Fatalf("auth logout: %v", err)
	}
	out, _, _ = runCLI(t, []string{"auth", "status"}, env.configPath)
	requireContains(t, out, "not signed in")

	if _, _, err := runCLI(t, []string{"auth", "import"}, env.configPath); err == nil {
		t.Fatal("expected import without --token to fail")
	}
	out, _, err = runCLI(t, []string{"auth", "import", "--token", "abc", "--expires-in", "30m"}, env.configPath)
	if err != nil {
		t.Fatalf("auth import: %v", err)
	}
	requireContains(t, out, "Token stored")
}

func TestStatusCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(report.Checks) == 0 || report.Session.SignedIn {
		t.Fatalf("unexpected report: %+v", report)
	}
}
