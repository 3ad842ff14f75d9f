// Package runstate persists per-chunk run records alongside retrieval
// outputs.
//
// Each chunk's output directory carries a job.json describing the most
// recent run of that chunk: state, attempts, timestamps, and the pid of the
// external process. Operators inspect these through `metfetch status` or
// the status server; resume decisions still come from the marker file only.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// recordFile is the per-chunk record written into the job's output directory.
const recordFile = "job.json"

// outDirSuffix is the naming convention for chunk output directories.
const outDirSuffix = "_out"

// Store persists and loads Records from an on-disk output tree.
//
// Directory layout:
//
//	<root>/<job_id>_out/job.json
//	<root>/<job_id>_out/job_done
//	<root>/<job_id>.log
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) RecordPath(jobID string) string {
	return filepath.Join(s.root, jobID+outDirSuffix, recordFile)
}

// Write persists a record atomically via temp-file rename.
func (s *Store) Write(record *Record) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}
	jobID := strings.TrimSpace(record.JobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	dir := filepath.Join(s.root, jobID+outDirSuffix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job out dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, recordFile+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp run record: %w", err)
	}

	if err := os.Rename(tmpName, s.RecordPath(jobID)); err != nil {
		return fmt.Errorf("rename run record: %w", err)
	}
	return nil
}

func (s *Store) Get(jobID string) (*Record, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	b, err := os.ReadFile(s.RecordPath(jobID))
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var record Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}
	return &record, nil
}

// List returns all records under the output tree, oldest chunk first so the
// listing follows chronological retrieval order.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), outDirSuffix) {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), outDirSuffix)
		r, err := s.Get(jobID)
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].JobID < out[j].JobID
	})

	return out, nil
}
