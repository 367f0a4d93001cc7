package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/keagan/videomcp/pkg/util"
)

// Manifest records one process run.
type Manifest struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Adapter    AdapterInfo `json:"adapter"`
	Video      ClipConfig  `json:"video"`
	LitStyle   string      `json:"lit_style"`
	Limit      int         `json:"limit"`
	Workers    int         `json:"workers"`
	Summary    RunSummary  `json:"summary"`
	Env        Environment `json:"environment"`
}

// AdapterInfo is the adapter's identity and upstream provenance.
type AdapterInfo struct {
	Name          string `json:"name"`
	GeneratorID   string `json:"generator_id"`
	GeneratorName string `json:"generator_name"`
	Dataset       string `json:"dataset,omitempty"`
	HFRepoID      string `json:"hf_repo_id,omitempty"`
	HFConfig      string `json:"hf_config,omitempty"`
	HFSplit       string `json:"hf_split,omitempty"`
	HFRevision    string `json:"hf_revision,omitempty"`
}

// RunSummary tallies outcomes. Reason maps are keyed by error kind.
type RunSummary struct {
	Processed   int            `json:"processed"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	SkipReasons map[string]int `json:"skip_reasons"`
	FailReasons map[string]int `json:"fail_reasons"`
	Incomplete  []string       `json:"incomplete"`
}

// Environment pins the toolchain that produced the run.
type Environment struct {
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	NumCPU        int    `json:"num_cpu"`
	ToolVersion   string `json:"tool_version"`
	FFmpegVersion string `json:"ffmpeg_version,omitempty"`
}

// historyLayout sorts lexically in time order.
const historyLayout = "20060102T150405.000000000Z"

// WriteManifest replaces run_manifest.json and adds a history entry named
// after the run's start time. History entries are never overwritten; a
// colliding name gets a numeric suffix. It returns the history path.
func (l *Layout) WriteManifest(m Manifest) (string, error) {
	data, err := marshal(m)
	if err != nil {
		return "", err
	}

	histDir := filepath.Join(l.GeneratorDir(), HistoryDir)
	if err := util.EnsureDir(histDir); err != nil {
		return "", err
	}

	stamp := m.StartedAt.UTC().Format(historyLayout)
	var histPath string
	for n := 0; ; n++ {
		name := stamp + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s-%d.json", stamp, n)
		}
		histPath = filepath.Join(histDir, name)
		err := util.WriteFileExclusive(histPath, data, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("write manifest history: %w", err)
		}
		if n > 1000 {
			return "", fmt.Errorf("write manifest history: too many runs at %s", stamp)
		}
	}

	if err := util.WriteFileAtomic(filepath.Join(l.GeneratorDir(), ManifestFile), data, 0o644); err != nil {
		return histPath, fmt.Errorf("write manifest: %w", err)
	}
	return histPath, nil
}

// History lists the history entries, oldest first.
func (l *Layout) History() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.GeneratorDir(), HistoryDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			out = append(out, filepath.Join(l.GeneratorDir(), HistoryDir, e.Name()))
		}
	}
	return out, nil
}
