package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := &Record{
		JobID:       "EI_job_0_20130201-20130203",
		RunID:       "run-abc",
		State:       StateRunning,
		StartDate:   "20130201",
		EndDate:     "20130203",
		ControlFile: "/tmp/CONTROL_EI.public_EI_job_0",
		Attempts:    1,
		PID:         4242,
		CreatedAt:   now,
		StartedAt:   &now,
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("EI_job_0_20130201-20130203")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id mismatch: got=%q want=%q", got.JobID, rec.JobID)
	}
	if got.State != StateRunning {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, StateRunning)
	}
	if got.PID != 4242 {
		t.Fatalf("pid not persisted")
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(now) {
		t.Fatalf("started_at not persisted")
	}
}

func TestStore_WriteRequiresJobID(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Write(&Record{}); err == nil {
		t.Fatal("expected error for empty job_id")
	}
	if err := s.Write(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestStore_ListSortsByJobID(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	for _, id := range []string{"EI_job_2_20130207-20130207", "EI_job_0_20130201-20130203", "EI_job_1_20130204-20130206"} {
		if err := s.Write(&Record{JobID: id, State: StateSuccess, CreatedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("Write(%s) error: %v", id, err)
		}
	}

	// Noise that must be ignored: non-out dirs and a log file.
	if err := os.MkdirAll(filepath.Join(root, "EI_job_0_20130201-20130203_tmp"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "EI_job_0_20130201-20130203.log"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"EI_job_0_20130201-20130203", "EI_job_1_20130204-20130206", "EI_job_2_20130207-20130207"} {
		if got[i].JobID != want {
			t.Fatalf("order mismatch at %d: got=%q want=%q", i, got[i].JobID, want)
		}
	}
}

func TestStore_ListMissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	got, err := s.List()
	if err != nil {
		t.Fatalf("List() on missing root should not error, got: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil records, got %v", got)
	}
}
