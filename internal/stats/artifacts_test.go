package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	rows := []ReportRow{
		{Step: 100, Win0: 0.5, Win1: 0.25, Tie: 0.25, Total: 4, Coefficient: 1},
		{Step: 200, Total: 0, Coefficient: 0.5},
	}
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Env:            "run-to-goal",
			AgentIdx:       1,
			NumEnvs:        2,
			TotalTimesteps: 200,
			Seed:           1,
		},
		Reports:  rows,
		Lifetime: Outcomes{Win0: 2, Win1: 1, Ties: 1, Games: 4},
		Summary:  Summarize(rows),
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{configFile, summaryFile, reportsFile, lifetimeFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	loadedRows, ok, err := ReadReports(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read reports: ok=%t err=%v", ok, err)
	}
	if len(loadedRows) != 2 || loadedRows[0] != rows[0] || loadedRows[1] != rows[1] {
		t.Fatalf("unexpected reports: %+v", loadedRows)
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.Env != "run-to-goal" || cfg.AgentIdx != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	lifetime, ok, err := ReadLifetime(baseDir, runID)
	if err != nil || !ok || lifetime.Games != 4 {
		t.Fatalf("unexpected lifetime: %+v ok=%t err=%v", lifetime, ok, err)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range []string{configFile, summaryFile, reportsFile, lifetimeFile} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestExportRequiresExistingRun(t *testing.T) {
	if _, err := ExportRunArtifacts(t.TempDir(), "missing", t.TempDir()); err == nil {
		t.Fatal("expected error for missing run")
	}
	if _, err := ExportRunArtifacts(t.TempDir(), "", t.TempDir()); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", Games: 9}); err != nil {
		t.Fatalf("replace a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(index))
	}
	if index[0].RunID != "c" || index[1].RunID != "b" || index[2].RunID != "a" {
		t.Fatalf("unexpected index order: %+v", index)
	}
	if index[2].Games != 9 {
		t.Fatalf("expected replaced entry, got %+v", index[2])
	}
}

func TestListRunIndexMissingFile(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %+v", index)
	}
}

func TestWriteRunConfigRejectsMismatch(t *testing.T) {
	if err := WriteRunConfig(t.TempDir(), "run-1", RunConfig{RunID: "run-2"}); err == nil {
		t.Fatal("expected run id mismatch error")
	}
	baseDir := t.TempDir()
	if err := WriteRunConfig(baseDir, "run-1", RunConfig{Env: "run-to-goal"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil || !ok || cfg.RunID != "run-1" {
		t.Fatalf("unexpected config: %+v ok=%t err=%v", cfg, ok, err)
	}
}
