package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFixturesSkipsNonJSON(t *testing.T) {
	dir := t.TempDir()
	// Short non-fixture names must be skipped, not sliced.
	writeFixture(t, dir, "a.go", "package main")
	writeFixture(t, dir, "README", "notes")
	writeFixture(t, dir, "build.json", `{"task_id":"t1"}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected only the build fixture, got %v", fixtures)
	}
	if len(fixtures["build"]) != 1 {
		t.Fatalf("expected one build fixture, got %d", len(fixtures["build"]))
	}
}

func TestLoadFixturesSequenceOrder(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "validate.2.json", `{"verdict":"PASS"}`)
	writeFixture(t, dir, "validate.1.json", `{"verdict":"FAIL"}`)
	writeFixture(t, dir, "validate.json", `{"verdict":"PASS"}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	seq := fixtures["validate"]
	if len(seq) != 3 {
		t.Fatalf("expected 3 fixtures, got %d", len(seq))
	}
	if string(seq[0]) != `{"verdict":"FAIL"}` {
		t.Fatalf("numbered fixtures out of order: first = %s", seq[0])
	}

	srv := &server{fixtures: fixtures, roleCalls: make(map[string]*atomic.Int64)}
	first := srv.respond("validate")
	if string(first.Result) != `{"verdict":"FAIL"}` {
		t.Fatalf("first call = %s", first.Result)
	}
	// The unnumbered fixture repeats once the sequence is exhausted.
	for i := 0; i < 3; i++ {
		last := srv.respond("validate")
		if string(last.Result) != `{"verdict":"PASS"}` {
			t.Fatalf("call %d = %s", i+2, last.Result)
		}
	}
}

func TestRespondUnknownRole(t *testing.T) {
	srv := &server{fixtures: map[string][]json.RawMessage{}, roleCalls: make(map[string]*atomic.Int64)}
	if r := srv.respond("plan"); r.Error == "" {
		t.Fatal("expected an error reply for a role without fixtures")
	}
}
