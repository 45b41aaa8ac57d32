// Package main implements mock collaborator agents for e2e testing.
// It answers the codeloom agent subjects (build, validate, scan, plan) over
// NATS request/reply with JSON fixture files. This eliminates the need for
// real AI agents during orchestration wiring tests, making them fast,
// deterministic, and offline-capable.
//
// Usage:
//
//	mock-agents -fixtures /path/to/fixtures -url nats://127.0.0.1:4222
//
// Fixture files are JSON named by role (e.g., "validate.json" answers the
// validate subject). The file content is returned as the reply's result.
//
// Sequential fixtures: If numbered files exist (e.g., "validate.1.json",
// "validate.2.json"), the Nth request on that role returns the Nth fixture.
// After exhausting numbered fixtures, the base "validate.json" is used as a
// repeating fallback. This enables testing fail -> retry -> pass loops.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/nats-io/nats.go"
)

var roles = []string{"build", "validate", "scan", "plan"}

// reply is the wire envelope the codeloom agent transport expects.
type reply struct {
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type server struct {
	fixtures map[string][]json.RawMessage // role -> ordered fixture contents

	mu        sync.Mutex
	roleCalls map[string]*atomic.Int64
}

var numberedFixture = regexp.MustCompile(`^([a-z]+)\.(\d+)\.json$`)

// loadFixtures reads the fixture directory. Numbered fixtures sort first,
// the unnumbered file becomes the repeating tail.
func loadFixtures(dir string) (map[string][]json.RawMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures dir: %w", err)
	}

	type numbered struct {
		n       int
		content json.RawMessage
	}
	sequences := make(map[string][]numbered)
	tails := make(map[string]json.RawMessage)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if !json.Valid(content) {
			return nil, fmt.Errorf("fixture %s is not valid JSON", name)
		}

		if m := numberedFixture.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[2])
			sequences[m[1]] = append(sequences[m[1]], numbered{n: n, content: content})
			continue
		}
		tails[strings.TrimSuffix(name, ".json")] = content
	}

	fixtures := make(map[string][]json.RawMessage)
	for role, seq := range sequences {
		sort.Slice(seq, func(i, j int) bool { return seq[i].n < seq[j].n })
		for _, item := range seq {
			fixtures[role] = append(fixtures[role], item.content)
		}
	}
	for role, tail := range tails {
		fixtures[role] = append(fixtures[role], tail)
	}
	return fixtures, nil
}

// respond picks the fixture for the role's Nth call.
func (s *server) respond(role string) reply {
	seq, ok := s.fixtures[role]
	if !ok || len(seq) == 0 {
		return reply{Error: fmt.Sprintf("no fixture for role %s", role)}
	}

	s.mu.Lock()
	counter, ok := s.roleCalls[role]
	if !ok {
		counter = &atomic.Int64{}
		s.roleCalls[role] = counter
	}
	s.mu.Unlock()

	call := int(counter.Add(1)) // 1-indexed
	idx := call - 1
	if idx >= len(seq) {
		idx = len(seq) - 1 // repeating tail
	}
	return reply{Result: seq[idx]}
}

func main() {
	fixturesDir := flag.String("fixtures", "", "Directory of JSON fixture files (required)")
	url := flag.String("url", nats.DefaultURL, "NATS server URL")
	prefix := flag.String("prefix", "codeloom.agents", "Subject prefix to serve")
	flag.Parse()

	if *fixturesDir == "" {
		log.Fatal("-fixtures is required")
	}

	fixtures, err := loadFixtures(*fixturesDir)
	if err != nil {
		log.Fatalf("load fixtures: %v", err)
	}
	srv := &server{fixtures: fixtures, roleCalls: make(map[string]*atomic.Int64)}

	conn, err := nats.Connect(*url, nats.Name("mock-agents"))
	if err != nil {
		log.Fatalf("connect to NATS %s: %v", *url, err)
	}
	defer conn.Drain()

	for _, role := range roles {
		role := role
		subject := *prefix + "." + role
		_, err := conn.Subscribe(subject, func(msg *nats.Msg) {
			resp := srv.respond(role)
			data, err := json.Marshal(resp)
			if err != nil {
				log.Printf("marshal %s reply: %v", role, err)
				return
			}
			if err := msg.Respond(data); err != nil {
				log.Printf("respond on %s: %v", subject, err)
			}
			log.Printf("%s: served fixture reply", subject)
		})
		if err != nil {
			log.Fatalf("subscribe %s: %v", subject, err)
		}
		log.Printf("serving %s", subject)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Print("shutting down")
}
