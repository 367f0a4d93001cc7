// Package clips turns one validated sample into its artifact set: the
// preserved original, boundary frames, the encoded clip and the prompt.
package clips

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/ffmpeg"
	"github.com/keagan/videomcp/internal/layout"
	"github.com/keagan/videomcp/internal/logging"
	"github.com/keagan/videomcp/internal/render"
	"github.com/keagan/videomcp/internal/videospec"
	"github.com/keagan/videomcp/pkg/util"
)

// Status is the outcome of one sample.
type Status int

const (
	Processed Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Processed:
		return "processed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Encoder compiles a frame sequence into a video file.
type Encoder interface {
	Encode(ctx context.Context, req ffmpeg.EncodeRequest) error
}

// Job is one sample with its zero-based output index.
type Job struct {
	Index  int
	Record dataset.Record
}

// Result describes what happened to a job.
type Result struct {
	Index      int
	SourceID   string
	SampleName string
	Status     Status
	// Incomplete is set when the sample directory exists but lacks the
	// video or boundary frames.
	Incomplete bool
	Kind       errs.Kind
	Err        error
	Duration   time.Duration
}

// Config fixes the parameters shared by every job of a run.
type Config struct {
	Layout   *layout.Layout
	Renderer *render.Renderer
	Encoder  Encoder
	Spec     videospec.Spec
	Style    render.Style
	// TempDir parents the per-sample scratch directories.
	TempDir string
}

// Assembler builds sample artifacts. It is safe for concurrent use; each
// call works in its own scratch directory.
type Assembler struct {
	logger zerolog.Logger
	cfg    Config
}

func NewAssembler(logger zerolog.Logger, cfg Config) *Assembler {
	return &Assembler{
		logger: logger.With().Str("component", "assembler").Logger(),
		cfg:    cfg,
	}
}

// Assemble processes one job. Errors are reported in the Result, never
// returned, so one sample cannot stop the others.
func (a *Assembler) Assemble(ctx context.Context, job Job) Result {
	start := time.Now()
	s := job.Record.Sample
	name := a.cfg.Layout.SampleName(job.Index)
	logger := logging.WithSample(a.logger, s.Dataset, s.SourceID).With().Str("sample", name).Logger()

	res := Result{Index: job.Index, SourceID: s.SourceID, SampleName: name}
	finish := func(status Status, incomplete bool, err error) Result {
		res.Status = status
		res.Incomplete = incomplete
		res.Err = err
		res.Kind = errs.KindOf(err)
		res.Duration = time.Since(start)
		return res
	}

	if err := s.Validate(); err != nil {
		return finish(Skipped, false, err)
	}

	paths := a.cfg.Layout.Paths(job.Index)
	if err := a.writeOriginals(paths, job.Record); err != nil {
		return finish(Failed, true, err)
	}

	err := a.renderAndEncode(ctx, logger, paths, job.Record)
	if err != nil {
		return finish(Failed, true, err)
	}

	logger.Debug().Dur("elapsed", time.Since(start)).Msg("sample assembled")
	return finish(Processed, false, nil)
}

// writeOriginals resets the sample directory and writes everything that does
// not depend on rendering.
func (a *Assembler) writeOriginals(paths layout.SamplePaths, rec dataset.Record) error {
	s := rec.Sample
	if err := os.RemoveAll(paths.Dir); err != nil {
		return errs.Render("reset sample dir", err)
	}
	if err := util.EnsureDir(paths.OriginalDir); err != nil {
		return errs.Render("create sample dir", err)
	}
	if err := util.WriteFileAtomic(paths.OriginalImage(s.ImageFilename), rec.Image, 0o644); err != nil {
		return errs.Render("write original image", err)
	}
	if err := layout.WriteQuestion(paths.Question, s); err != nil {
		return errs.Render("write question", err)
	}
	if err := layout.WritePrompt(paths.Prompt, s); err != nil {
		return errs.Render("write prompt", err)
	}
	return nil
}

func (a *Assembler) renderAndEncode(ctx context.Context, logger zerolog.Logger, paths layout.SamplePaths, rec dataset.Record) error {
	spec := a.cfg.Spec
	scratch, err := os.MkdirTemp(a.cfg.TempDir, "videomcp-"+filepath.Base(paths.Dir)+"-")
	if err != nil {
		return errs.Render("create scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	scene, err := a.cfg.Renderer.Prepare(rec.Sample, rec.Image, spec)
	if err != nil {
		return err
	}
	defer scene.Close()

	if !scene.TextFits() {
		logger.Warn().Msg("question text truncated at minimum font size")
	}

	framePath := func(i int) string {
		return filepath.Join(scratch, fmt.Sprintf(layout.FramePattern, i))
	}
	for i := range spec.NumFrames {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := scene.Frame(i, spec.NumFrames, a.cfg.Style)
		if err != nil {
			return err
		}
		if err := render.WritePNG(framePath(i), img); err != nil {
			return errs.Render(fmt.Sprintf("write frame %d", i), err)
		}
	}

	err = a.cfg.Encoder.Encode(ctx, ffmpeg.EncodeRequest{
		FramesDir: scratch,
		Pattern:   layout.FramePattern,
		FPS:       spec.FPS,
		Width:     spec.Width,
		Height:    spec.Height,
		Output:    paths.Video,
		Progress: func(p *ffmpeg.Progress) {
			logger.Debug().
				Int("frame", p.Frame).
				Int("frames", spec.NumFrames).
				Str("speed", p.Speed).
				Msg("encode progress")
		},
	})
	if err != nil {
		if errs.KindOf(err) == "" && ctx.Err() == nil {
			err = errs.Encode("encode", err)
		}
		return err
	}

	if err := util.CopyFile(framePath(0), paths.FirstFrame); err != nil {
		return errs.Render("copy first frame", err)
	}
	if err := util.CopyFile(framePath(spec.NumFrames-1), paths.FinalFrame); err != nil {
		return errs.Render("copy final frame", err)
	}
	return nil
}
