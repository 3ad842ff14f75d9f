// Package manifest provides loading and validation of metfetch job
// manifests.
//
// A job manifest is a YAML or JSON file carrying the flat set of scalar
// options for one retrieval campaign: which external program to run, which
// CONTROL file to parameterize, the date range and chunking, and the
// execution limits. CLI flags override individual manifest values.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	executable: /opt/flex_extract/Source/Python/submit.py
//	control_file: /opt/flex_extract/Run/Control/CONTROL_EI.public
//	start_date: "20130201"
//	end_date: "20130228"
//	days_per_job: 3
//	job_prefix: EI_job
//	copy_control: true
//	workers: 3
//	timeout: 4h
//	timeout_retries: 3
//	output_dir: /data/flexpart_erai
package manifest

import (
	"fmt"
	"time"

	"github.com/stormpetrel/metfetch/pkg/chunk"
)

// Manifest is a validated retrieval campaign description.
type Manifest struct {
	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Executable is the path to the external retrieval program.
	Executable string `json:"executable" yaml:"executable"`

	// ControlFile is the path to the base CONTROL file.
	ControlFile string `json:"control_file" yaml:"control_file"`

	// StartDate and EndDate bound the inclusive retrieval period, YYYYMMDD.
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`

	// DaysPerJob is the chunk size in days. Default: 1.
	DaysPerJob int `json:"days_per_job,omitempty" yaml:"days_per_job,omitempty"`

	// JobPrefix prefixes every job id and per-job directory. Default: "job".
	JobPrefix string `json:"job_prefix,omitempty" yaml:"job_prefix,omitempty"`

	// CopyControl makes a dedicated parameterized CONTROL copy per job so
	// concurrent jobs never contend on the shared base file. Default: true.
	CopyControl *bool `json:"copy_control,omitempty" yaml:"copy_control,omitempty"`

	// Workers is the number of concurrent retrievals. Default: 3.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Timeout bounds each attempt, as a Go duration string ("4h", "90m").
	// Empty or "0" disables the per-attempt timeout. Default: "4h".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// TimeoutRetries is the number of extra attempts after a timeout.
	// Default: 3.
	TimeoutRetries *int `json:"timeout_retries,omitempty" yaml:"timeout_retries,omitempty"`

	// LaunchRate caps external process launches per second. Zero disables.
	LaunchRate float64 `json:"launch_rate,omitempty" yaml:"launch_rate,omitempty"`

	// OutputDir is the root directory for per-job outputs, logs, markers.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// ApplyDefaults fills zero values with defaults.
func (m *Manifest) ApplyDefaults() {
	if m.DaysPerJob == 0 {
		m.DaysPerJob = 1
	}
	if m.JobPrefix == "" {
		m.JobPrefix = "job"
	}
	if m.CopyControl == nil {
		enabled := true
		m.CopyControl = &enabled
	}
	if m.Workers == 0 {
		m.Workers = 3
	}
	if m.Timeout == "" {
		m.Timeout = "4h"
	}
	if m.TimeoutRetries == nil {
		retries := 3
		m.TimeoutRetries = &retries
	}
}

// Validate checks the manifest for use. Call after ApplyDefaults.
func (m *Manifest) Validate() error {
	if m.Version != "" && m.Version != "1.0" {
		return fmt.Errorf("unsupported manifest version %q (want \"1.0\")", m.Version)
	}
	if m.Executable == "" {
		return fmt.Errorf("executable is required")
	}
	if m.ControlFile == "" {
		return fmt.Errorf("control_file is required")
	}
	if m.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	start, err := chunk.ParseDate(m.StartDate)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	end, err := chunk.ParseDate(m.EndDate)
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	if start.After(end) {
		return fmt.Errorf("start_date %s is after end_date %s", m.StartDate, m.EndDate)
	}
	if m.DaysPerJob < 1 {
		return fmt.Errorf("days_per_job must be >= 1, got %d", m.DaysPerJob)
	}
	if m.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", m.Workers)
	}
	if *m.TimeoutRetries < 0 {
		return fmt.Errorf("timeout_retries must be >= 0, got %d", *m.TimeoutRetries)
	}
	if m.LaunchRate < 0 {
		return fmt.Errorf("launch_rate must be >= 0, got %g", m.LaunchRate)
	}
	if _, err := m.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses the Timeout field. Empty or "0" means no timeout.
func (m *Manifest) TimeoutDuration() (time.Duration, error) {
	if m.Timeout == "" || m.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", m.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must be >= 0, got %s", m.Timeout)
	}
	return d, nil
}

// CopyControlEnabled reports the effective copy_control setting.
func (m *Manifest) CopyControlEnabled() bool {
	return m.CopyControl == nil || *m.CopyControl
}

// Retries reports the effective timeout_retries setting.
func (m *Manifest) Retries() int {
	if m.TimeoutRetries == nil {
		return 3
	}
	return *m.TimeoutRetries
}
