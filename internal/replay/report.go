package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"poolEngine/internal/model"
)

// OpStats counts outcomes for one operation kind.
type OpStats struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// Report summarizes a replay run. Snapshot reserves are decimals for
// transparent pools and ciphertext handles for confidential ones.
type Report struct {
	Mode        string                    `json:"mode"`
	Total       int                       `json:"total"`
	Applied     int                       `json:"applied"`
	Failed      int                       `json:"failed"`
	Events      int                       `json:"events"`
	ByOp        map[model.OpKind]*OpStats `json:"by_op"`
	Snapshot    model.PoolSnapshot        `json:"snapshot"`
	GeneratedAt string                    `json:"generated_at"`
}

func newReport(mode string) Report {
	return Report{Mode: mode, ByOp: make(map[model.OpKind]*OpStats)}
}

func (r *Report) record(kind model.OpKind, err error) {
	stats := r.ByOp[kind]
	if stats == nil {
		stats = &OpStats{}
		r.ByOp[kind] = stats
	}
	r.Total++
	if err != nil {
		r.Failed++
		stats.Failed++
		return
	}
	r.Applied++
	stats.Applied++
}

// WriteReport stores the report as JSON, replacing any previous file
// atomically.
func WriteReport(path string, report Report) error {
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	if report.GeneratedAt == "" {
		report.GeneratedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write report tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("parse report: %w", err)
	}
	return report, nil
}
