// Package layout owns the on-disk shape of a processed dataset:
//
//	<root>/<generator_id>_<dataset>_data-generator/
//	  clip_config.json
//	  run_manifest.json
//	  run_manifests/<UTC timestamp>.json
//	  <dataset>_task/<dataset>_NNNN/...
package layout

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/keagan/videomcp/internal/videospec"
	"github.com/keagan/videomcp/pkg/util"
)

// File names inside a sample directory.
const (
	ClipConfigFile  = "clip_config.json"
	ManifestFile    = "run_manifest.json"
	HistoryDir      = "run_manifests"
	FirstFrameFile  = "first_frame.png"
	FinalFrameFile  = "final_frame.png"
	VideoFile       = "ground_truth.mp4"
	PromptFile      = "prompt.txt"
	OriginalDir     = "original"
	QuestionFile    = "question.json"
	FramePattern    = "frame_%05d.png"
	sampleNameWidth = 4
)

// Layout computes paths for one generator.
type Layout struct {
	root        string
	generatorID string
	dataset     string
}

// New returns the layout rooted at root for a generator/dataset pair.
func New(root, generatorID, dataset string) *Layout {
	return &Layout{root: root, generatorID: generatorID, dataset: dataset}
}

func (l *Layout) Root() string { return l.root }

func (l *Layout) GeneratorDir() string {
	return filepath.Join(l.root, fmt.Sprintf("%s_%s_data-generator", l.generatorID, l.dataset))
}

func (l *Layout) TaskDir() string {
	return filepath.Join(l.GeneratorDir(), l.dataset+"_task")
}

// SampleName is the zero-based, zero-padded sample directory name.
func (l *Layout) SampleName(i int) string {
	return fmt.Sprintf("%s_%0*d", l.dataset, sampleNameWidth, i)
}

func (l *Layout) SampleDir(i int) string {
	return filepath.Join(l.TaskDir(), l.SampleName(i))
}

// SamplePaths lists every artifact of one sample.
type SamplePaths struct {
	Dir         string
	FirstFrame  string
	FinalFrame  string
	Video       string
	Prompt      string
	OriginalDir string
	Question    string
}

// OriginalImage is the preserved source image path.
func (p SamplePaths) OriginalImage(filename string) string {
	return filepath.Join(p.OriginalDir, filename)
}

func (l *Layout) Paths(i int) SamplePaths {
	dir := l.SampleDir(i)
	orig := filepath.Join(dir, OriginalDir)
	return SamplePaths{
		Dir:         dir,
		FirstFrame:  filepath.Join(dir, FirstFrameFile),
		FinalFrame:  filepath.Join(dir, FinalFrameFile),
		Video:       filepath.Join(dir, VideoFile),
		Prompt:      filepath.Join(dir, PromptFile),
		OriginalDir: orig,
		Question:    filepath.Join(orig, QuestionFile),
	}
}

// ClipConfig is the dataset-level clip_config.json.
type ClipConfig struct {
	FPS       int     `json:"fps"`
	Seconds   float64 `json:"seconds"`
	NumFrames int     `json:"num_frames"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// NewClipConfig derives the record for spec.
func NewClipConfig(spec videospec.Spec) ClipConfig {
	return ClipConfig{
		FPS:       spec.FPS,
		Seconds:   spec.Seconds(),
		NumFrames: spec.NumFrames,
		Width:     spec.Width,
		Height:    spec.Height,
	}
}

// WriteClipConfig overwrites clip_config.json. The same spec always yields
// the same bytes.
func (l *Layout) WriteClipConfig(spec videospec.Spec) error {
	data, err := marshal(NewClipConfig(spec))
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(filepath.Join(l.GeneratorDir(), ClipConfigFile), data, 0o644)
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
