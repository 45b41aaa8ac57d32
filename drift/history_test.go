package drift

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleReport(stamp time.Time) *Report {
	return &Report{
		Timestamp: stamp,
		Summary:   Summary{Flags: 1},
		Flags: []Finding{
			{Rule: RuleNewEnvVar, Severity: SeverityFlag, Nodes: []string{"env_var:API_KEY"}, Rationale: "new environment variable dependency API_KEY"},
		},
	}
}

func TestHistory_WriteAndLoad(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "history"), nil)
	stamp := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	path, err := h.Write(sampleReport(stamp))
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if want := "20260302T093000Z_diff.json"; filepath.Base(path) != want {
		t.Errorf("filename = %s, want %s", filepath.Base(path), want)
	}

	loaded, err := h.Load(filepath.Base(path))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Summary.Flags != 1 || len(loaded.Flags) != 1 {
		t.Errorf("loaded report = %+v, want one flag", loaded)
	}
}

func TestHistory_NeverOverwrites(t *testing.T) {
	h := NewHistory(t.TempDir(), nil)
	stamp := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	first, err := h.Write(sampleReport(stamp))
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.Write(sampleReport(stamp))
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Errorf("second write reused path %s", first)
	}

	names, err := h.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("List() = %v, want 2 entries", names)
	}
}

func TestHistory_ListChronological(t *testing.T) {
	h := NewHistory(t.TempDir(), nil)

	stamps := []time.Time{
		time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	for _, stamp := range stamps {
		if _, err := h.Write(sampleReport(stamp)); err != nil {
			t.Fatal(err)
		}
	}

	names, err := h.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 {
		t.Fatalf("List() = %v, want 3 entries", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i] < names[i-1] {
			t.Errorf("listing not chronological: %s before %s", names[i-1], names[i])
		}
	}
	if !strings.HasPrefix(names[0], "20260301T") {
		t.Errorf("oldest entry = %s, want 2026-03-01 report first", names[0])
	}

	latest, err := h.Latest()
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if !latest.Timestamp.Equal(stamps[0]) {
		t.Errorf("Latest() timestamp = %v, want %v", latest.Timestamp, stamps[0])
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "missing"), nil)

	names, err := h.List()
	if err != nil || len(names) != 0 {
		t.Errorf("List() on missing dir = %v, %v; want empty, nil", names, err)
	}
	if _, err := h.Latest(); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("Latest() = %v, want ErrReportNotFound", err)
	}
	if _, err := h.Load("nope_diff.json"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("Load(missing) = %v, want ErrReportNotFound", err)
	}
}
