package drift

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// historyTimestamp is a UTC-compact layout whose lexicographic order equals
// chronological order, so a plain directory listing replays history.
const historyTimestamp = "20060102T150405Z"

const historySuffix = "_diff.json"

// ErrReportNotFound reports a missing history entry.
var ErrReportNotFound = errors.New("drift report not found")

// History is the append-only archive of drift reports: one JSON file per run,
// named by timestamp, never overwritten.
type History struct {
	dir    string
	logger *slog.Logger
}

// NewHistory creates a history rooted at dir. A nil logger disables logging.
func NewHistory(dir string, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &History{dir: dir, logger: logger}
}

// Write persists a report and returns the path it was written to. An existing
// file is never overwritten; a second report within the same second gets a
// numeric suffix.
func (h *History) Write(report *Report) (string, error) {
	if err := os.MkdirAll(h.dir, 0755); err != nil {
		return "", fmt.Errorf("create history directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal drift report: %w", err)
	}
	data = append(data, '\n')

	stamp := report.Timestamp.UTC().Format(historyTimestamp)
	for i := 0; ; i++ {
		name := stamp + historySuffix
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stamp, i, historySuffix)
		}
		path := filepath.Join(h.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create drift report: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write drift report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close drift report: %w", err)
		}

		h.logger.Info("drift report persisted",
			"path", path,
			"flags", report.Summary.Flags,
			"blocks", report.Summary.Blocks)
		return path, nil
	}
}

// List returns the archived report filenames in chronological order. A
// missing history directory is an empty history, not an error.
func (h *History) List() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), historySuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one archived report by filename.
func (h *History) Load(name string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read drift report: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse drift report %s: %w", name, err)
	}
	return &report, nil
}

// Latest returns the most recent archived report, or ErrReportNotFound for
// an empty history.
func (h *History) Latest() (*Report, error) {
	names, err := h.List()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrReportNotFound
	}
	return h.Load(names[len(names)-1])
}
