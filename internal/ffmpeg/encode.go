package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keagan/videomcp/internal/errs"
)

// Encode turns a frame sequence into an H.264 mp4. The output appears
// atomically: ffmpeg writes a temp file beside it which is renamed on
// success and removed on failure.
func (e *Executor) Encode(ctx context.Context, req EncodeRequest) error {
	if err := validateEncodeRequest(req); err != nil {
		return errs.Encode("encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.Output), "."+filepath.Base(req.Output)+".tmp-*")
	if err != nil {
		return errs.Encode("encode", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	e.logger.Debug().
		Str("frames", req.FramesDir).
		Str("output", req.Output).
		Int("fps", req.FPS).
		Msg("encoding clip")

	err = e.Run(ctx, RunOptions{
		Args:            buildEncodeArgs(req, tmpPath, e.preset, e.crf),
		ProgressHandler: e.progressHandler(req),
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
		},
	})
	if err != nil {
		os.Remove(tmpPath)
		return errs.Encode("encode "+filepath.Base(req.Output), err)
	}

	if info, err := os.Stat(tmpPath); err != nil || info.Size() == 0 {
		os.Remove(tmpPath)
		return errs.Encode("encode "+filepath.Base(req.Output), errors.New("ffmpeg produced no output"))
	}

	if err := os.Rename(tmpPath, req.Output); err != nil {
		os.Remove(tmpPath)
		return errs.Encode("encode", fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

func (e *Executor) progressHandler(req EncodeRequest) func(*Progress) {
	if req.Progress != nil {
		return req.Progress
	}
	name := filepath.Base(req.Output)
	return func(p *Progress) {
		e.logger.Debug().
			Str("output", name).
			Int("frame", p.Frame).
			Str("speed", p.Speed).
			Msg("encode progress")
	}
}

// buildEncodeArgs returns the ffmpeg arguments after the executor's global
// flags. The muxer is forced because the temp name has no .mp4 extension.
func buildEncodeArgs(req EncodeRequest, output, preset string, crf int) []string {
	pattern := req.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	vf := NewFilterBuilder().
		Scale(req.Width, req.Height).
		FPS(float64(req.FPS)).
		Format(DefaultPixelFormat).
		Build()

	return []string{
		"-framerate", fmt.Sprintf("%d", req.FPS),
		"-start_number", "0",
		"-i", filepath.Join(req.FramesDir, pattern),
		"-vf", vf,
		"-c:v", DefaultVideoCodec,
		"-preset", preset,
		"-crf", fmt.Sprintf("%d", crf),
		"-pix_fmt", DefaultPixelFormat,
		"-movflags", "+faststart",
		"-an",
		"-f", "mp4",
		output,
	}
}

func validateEncodeRequest(req EncodeRequest) error {
	var problems []error
	if req.FramesDir == "" {
		problems = append(problems, errors.New("frames directory is required"))
	}
	if req.Output == "" {
		problems = append(problems, errors.New("output path is required"))
	}
	if req.FPS <= 0 {
		problems = append(problems, fmt.Errorf("fps must be > 0, got %d", req.FPS))
	}
	if req.Width <= 0 || req.Height <= 0 {
		problems = append(problems, fmt.Errorf("invalid size %dx%d", req.Width, req.Height))
	}
	return errors.Join(problems...)
}
