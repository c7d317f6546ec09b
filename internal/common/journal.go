package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunEntry records the outcome of decoding one tape file.
type RunEntry struct {
	File        string    `json:"file"`
	Format      string    `json:"format"`
	Sha256      string    `json:"sha256,omitempty"`
	Bytes       int64     `json:"bytes"`
	Records     int64     `json:"records"`
	Frames      int64     `json:"frames"`
	ErrorFrames int64     `json:"errorFrames"`
	Outputs     []string  `json:"outputs,omitempty"`
	Error       string    `json:"error,omitempty"`
	Ts          time.Time `json:"ts"`
}

// Failed reports whether the run stopped with an error.
func (e RunEntry) Failed() bool {
	return strings.TrimSpace(e.Error) != ""
}

// RunJournal provides append-only access to a JSONL run log.
type RunJournal struct {
	path string
	mu   sync.Mutex
}

func NewRunJournal(path string) *RunJournal {
	return &RunJournal{path: path}
}

func (j *RunJournal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Append writes entry as one JSON line.
func (j *RunJournal) Append(entry RunEntry) error {
	if j == nil {
		return errors.New("nil run journal")
	}
	if entry.File == "" {
		return errors.New("run entry missing file")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(j.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadRunJournal loads every entry from a JSONL file.
func ReadRunJournal(path string) ([]RunEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []RunEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry RunEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode run entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
