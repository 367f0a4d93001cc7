package pipeline

import (
	"github.com/keagan/videomcp/internal/layout"
	"github.com/keagan/videomcp/internal/render"
	"github.com/keagan/videomcp/internal/videospec"
)

// ProcessOptions configures one process run.
type ProcessOptions struct {
	OutDir string
	Video  videospec.Spec
	Style  render.Style
	// Limit bounds the number of valid samples dispatched; 0 means all.
	Limit int
}

// ExportOptions configures an export to the intermediate jsonl format.
type ExportOptions struct {
	OutDir string
	Split  string
	Limit  int
}

// ExportResult reports what an export wrote.
type ExportResult struct {
	MetadataPath  string
	Written       int
	Skipped       int
	ImagesWritten int
}

// Summary tallies one process run. It is recorded verbatim in the manifest.
type Summary = layout.RunSummary

// Config holds pipeline-specific configuration
type Config struct {
	// Workers bounds concurrent samples; 0 selects runtime.NumCPU().
	Workers int
	// TempDir parents the per-sample scratch directories.
	TempDir string
	// ProgressBar renders a bar on stderr during process.
	ProgressBar bool
	// ToolVersion is recorded in run manifests.
	ToolVersion string
}
